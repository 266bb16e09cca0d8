package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/config"
	"github.com/temcen/seasonrec/internal/database"
	"github.com/temcen/seasonrec/internal/handlers"
	"github.com/temcen/seasonrec/internal/messaging"
	"github.com/temcen/seasonrec/internal/middleware"
	"github.com/temcen/seasonrec/internal/services"
	"github.com/temcen/seasonrec/internal/validation"
	"github.com/temcen/seasonrec/pkg/models"
)

const systemMetricsInterval = 30 * time.Second

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	bus      *messaging.MessageBus
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: NewLogger(cfg.Logging),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.EnsureSchema(ctx, db.PG, app.logger)
		cancel()
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	var publisher services.EventPublisher
	if cfg.Kafka.Enabled {
		bus, err := messaging.NewMessageBus(cfg, app.logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize message bus: %w", err)
		}
		app.bus = bus
		publisher = bus
	}

	svc, err := services.New(cfg, app.logger, db, publisher)
	if err != nil {
		app.closeConnections()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	app.handlers = handlers.New(app.logger, cfg, svc)

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		app.closeConnections()
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	app.setupRouter(middleware.NewValidationMiddleware(validator, cfg.Recommendation.MaxLimit))

	return app, nil
}

// Start launches the background workers: the interaction consumer when
// Kafka is enabled and the system metrics collector.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.services.Health.CollectSystemMetrics(ctx, systemMetricsInterval)
	}()

	if a.bus != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			err := a.bus.ConsumeMessages(ctx, a.services.UserInteraction.HandleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("Interaction consumer stopped")
			}
		}()
	}
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Logger() *logrus.Logger {
	return a.logger
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Background workers did not stop before shutdown deadline")
	}

	return a.closeConnections()
}

func (a *App) closeConnections() error {
	var errs []error
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.WithError(err).Error("Error closing connections")
	}
	return err
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter(validate *middleware.ValidationMiddleware) {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config.Security.CORS))

	router.GET("/health", a.handlers.Health.Check)
	router.GET("/health/live", a.handlers.Health.Live)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(validate.ValidateParams())
	{
		api.GET("/recommendations/:userId", a.handlers.Recommendation.Get)

		products := api.Group("/products")
		{
			products.GET("/seasonal", a.handlers.Recommendation.Seasonal)
			products.GET("/featured", a.handlers.Recommendation.Featured)
			products.GET("/:productId/similar", a.handlers.Recommendation.Similar)
		}

		api.POST("/interactions",
			middleware.RateLimit(a.services.RateLimit, a.logger),
			validate.ValidateInteractionEvent(),
			a.handlers.Interaction.Record,
		)

		admin := api.Group("/admin")
		admin.Use(middleware.Auth(a.services.Auth, a.logger, models.RoleAdmin))
		{
			admin.POST("/model/retrain", a.handlers.Admin.Retrain)
			admin.GET("/model/status", a.handlers.Admin.Status)
			admin.POST("/model/invalidate", a.handlers.Admin.Invalidate)
			admin.POST("/interactions/rebuild", a.handlers.Admin.RebuildInteractions)
			admin.GET("/jobs/:jobId", a.handlers.Admin.Job)
		}
	}

	a.router = router
}
