package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/config"
	"github.com/temcen/seasonrec/internal/database"
	"github.com/temcen/seasonrec/internal/geo"
	"github.com/temcen/seasonrec/internal/ml"
)

type Services struct {
	Auth                       *AuthService
	Health                     *HealthService
	Metrics                    *MetricsCollector
	RateLimit                  *RateLimitService
	Registry                   *ml.ModelRegistry
	JobManager                 *JobManager
	Training                   *TrainingService
	Similarity                 *SimilarityService
	UserInteraction            *UserInteractionService
	RecommendationOrchestrator *RecommendationOrchestrator

	closers []func() error
}

// New wires the services over db. publisher may be nil, in which case
// tracked events are written directly.
func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, publisher EventPublisher) (*Services, error) {
	store, closeStore, err := NewSnapshotStore(cfg.Training, logger)
	if err != nil {
		return nil, err
	}

	registry := ml.NewModelRegistry(ml.RegistryConfig{
		Rank:              cfg.Recommendation.Rank,
		Seed:              cfg.Recommendation.Seed,
		ContentComponents: cfg.Recommendation.ContentComponents,
		Params:            cfg.Recommendation.Hybrid,
	}, store, logger)
	registry.SetTrainingLock(NewRedisTrainingLock(db.Redis, cfg.Training.LockTTL, logger))

	metrics := NewMetricsCollector(prometheus.DefaultRegisterer, logger)

	catalog := NewCatalogStore(db.PG)
	interactions := NewInteractionStore(db.PG)
	similarityStore := NewSimilarityStore(db.PG)

	var graph SimilarityGraph
	if db.Neo4j != nil {
		graph = NewNeo4jSimilarityGraph(db.Neo4j, logger)
	}
	similarity := NewSimilarityService(interactions, similarityStore, graph, cfg.Recommendation.SimilarityFloor, logger)

	jobs := NewJobManager(db.PG, db.Redis, cfg.Training.JobTTL, logger)
	training := NewTrainingService(TrainingDeps{
		Registry:     registry,
		Catalog:      catalog,
		Interactions: interactions,
		Similarities: similarity,
		Jobs:         jobs,
		Metrics:      metrics,
	}, cfg.Training.Timeout, logger)

	orchestrator := NewRecommendationOrchestrator(OrchestratorDeps{
		Registry:        registry,
		Trainer:         training,
		Catalog:         catalog,
		Interactions:    interactions,
		Users:           NewUserStore(db.PG),
		Recommendations: NewRecommendationStore(db.PG),
		Similarities:    similarityStore,
		Cache:           NewRedisSimilarCache(db.Redis, cfg.Recommendation.SimilarCacheTTL, logger),
		Resolver:        geo.NewTableResolver(cfg.Geo.NorthernCountries, cfg.Geo.SouthernCountries),
		Metrics:         metrics,
	}, OrchestratorConfig{
		FallbackMax:   cfg.Recommendation.FallbackMax,
		RetrainOnMiss: cfg.Training.RetrainOnMiss,
	}, logger)

	critical := map[string]HealthCheck{
		"postgresql": func(ctx context.Context) error { return db.PG.Ping(ctx) },
		"redis":      func(ctx context.Context) error { return db.Redis.Ping(ctx).Err() },
	}
	nonCritical := map[string]HealthCheck{
		"model": func(ctx context.Context) error {
			if _, ok := registry.Load(ctx); !ok {
				return errors.New("no trained model available")
			}
			return nil
		},
	}
	if db.Neo4j != nil {
		nonCritical["neo4j"] = func(ctx context.Context) error { return db.Neo4j.VerifyConnectivity(ctx) }
	}

	s := &Services{
		Auth:                       NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger),
		Health:                     NewHealthService(critical, nonCritical, prometheus.DefaultRegisterer, logger),
		Metrics:                    metrics,
		RateLimit:                  NewRateLimitService(db.Redis, cfg.Security.RateLimit, logger),
		Registry:                   registry,
		JobManager:                 jobs,
		Training:                   training,
		Similarity:                 similarity,
		UserInteraction:            NewUserInteractionService(interactions, publisher, metrics, logger),
		RecommendationOrchestrator: orchestrator,
	}
	if closeStore != nil {
		s.closers = append(s.closers, closeStore)
	}
	return s, nil
}

// NewSnapshotStore opens the snapshot store selected by cfg.Store. The
// returned close function is nil when the store holds no resources.
func NewSnapshotStore(cfg config.TrainingConfig, logger *logrus.Logger) (ml.SnapshotStore, func() error, error) {
	switch cfg.Store {
	case config.StoreBadger:
		store, err := ml.OpenBadgerSnapshotStore(cfg.Dir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		return store, store.Close, nil
	case config.StoreFile, "":
		return ml.NewFileSnapshotStore(cfg.Dir, logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown snapshot store %q", cfg.Store)
	}
}

func (s *Services) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
