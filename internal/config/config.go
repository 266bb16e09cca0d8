package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/temcen/seasonrec/pkg/models"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Training       TrainingConfig       `mapstructure:"training"`
	Geo            GeoConfig            `mapstructure:"geo"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Neo4jConfig configures the optional similarity graph mirror.
type Neo4jConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  struct {
		UserInteractions string `mapstructure:"user_interactions"`
		DeadLetter       string `mapstructure:"dead_letter"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecommendationConfig struct {
	Hybrid            models.HybridParameters `mapstructure:"hybrid"`
	Rank              int                     `mapstructure:"rank"`
	Seed              uint64                  `mapstructure:"seed"`
	ContentComponents int                     `mapstructure:"content_components"`
	FallbackMax       int                     `mapstructure:"fallback_max"`
	DefaultLimit      int                     `mapstructure:"default_limit"`
	MaxLimit          int                     `mapstructure:"max_limit"`
	SimilarityFloor   float64                 `mapstructure:"similarity_floor"`
	SimilarCacheTTL   time.Duration           `mapstructure:"similar_cache_ttl"`
}

type TrainingConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	Store         string        `mapstructure:"store"`
	Dir           string        `mapstructure:"dir"`
	JobTTL        time.Duration `mapstructure:"job_ttl"`
	RetrainOnMiss bool          `mapstructure:"retrain_on_miss"`
}

type GeoConfig struct {
	NorthernCountries []string `mapstructure:"northern_countries"`
	SouthernCountries []string `mapstructure:"southern_countries"`
}

type SecurityConfig struct {
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits tracked events per client in a sliding window.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// Snapshot store kinds.
const (
	StoreFile   = "file"
	StoreBadger = "badger"
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	h := c.Recommendation.Hybrid
	if h.BehavioralWeight < 0 || h.ContentWeight < 0 || h.SeasonalBoost < 0 || h.LocationBoost < 0 {
		return fmt.Errorf("recommendation.hybrid values must not be negative")
	}
	if c.Recommendation.Rank <= 0 {
		return fmt.Errorf("recommendation.rank must be positive, got %d", c.Recommendation.Rank)
	}
	if c.Recommendation.ContentComponents <= 0 {
		return fmt.Errorf("recommendation.content_components must be positive, got %d", c.Recommendation.ContentComponents)
	}
	switch c.Training.Store {
	case StoreFile, StoreBadger:
	default:
		return fmt.Errorf("unknown training.store %q", c.Training.Store)
	}
	if c.Training.Timeout <= 0 {
		return fmt.Errorf("training.timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.url", "postgres://localhost:5432/shop")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.auto_migrate", false)

	// Redis defaults
	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "5s")

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.url", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "seasonrec-interactions")
	v.SetDefault("kafka.topics.user_interactions", "user-interactions")
	v.SetDefault("kafka.topics.dead_letter", "user-interactions-dlq")

	v.SetDefault("auth.token_ttl", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Recommendation defaults
	hybrid := models.DefaultHybridParameters()
	v.SetDefault("recommendation.hybrid.behavioral_weight", hybrid.BehavioralWeight)
	v.SetDefault("recommendation.hybrid.content_weight", hybrid.ContentWeight)
	v.SetDefault("recommendation.hybrid.seasonal_boost", hybrid.SeasonalBoost)
	v.SetDefault("recommendation.hybrid.location_boost", hybrid.LocationBoost)
	v.SetDefault("recommendation.rank", 10)
	v.SetDefault("recommendation.seed", 42)
	v.SetDefault("recommendation.content_components", 50)
	v.SetDefault("recommendation.fallback_max", 20)
	v.SetDefault("recommendation.default_limit", 10)
	v.SetDefault("recommendation.max_limit", 100)
	v.SetDefault("recommendation.similarity_floor", 0.1)
	v.SetDefault("recommendation.similar_cache_ttl", "30m")

	// Training defaults
	v.SetDefault("training.timeout", "10m")
	v.SetDefault("training.lock_ttl", "15m")
	v.SetDefault("training.store", StoreFile)
	v.SetDefault("training.dir", "./models")
	v.SetDefault("training.job_ttl", "24h")
	v.SetDefault("training.retrain_on_miss", true)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests", 120)
	v.SetDefault("security.rate_limit.window", "1m")
}
