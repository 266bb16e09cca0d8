package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/temcen/seasonrec/internal/ml"
	"github.com/temcen/seasonrec/pkg/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrJobNotFound     = errors.New("job not found")
)

// DatabaseQuerier is the subset of pgxpool.Pool the stores use, so tests can
// run against pgxmock.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CatalogReader reads the externally owned catalog tables.
type CatalogReader interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	// ReviewedProducts returns products with at least one review ordered by
	// average rating then review count, both descending.
	ReviewedProducts(ctx context.Context) ([]models.Product, error)
	// SeasonalProducts returns products carrying at least one season ordered
	// by average rating then featured, both descending.
	SeasonalProducts(ctx context.Context) ([]models.Product, error)
	FeaturedProducts(ctx context.Context) ([]models.Product, error)
}

type InteractionRepository interface {
	AllInteractions(ctx context.Context) ([]models.InteractionRecord, error)
	UserInteractions(ctx context.Context, userID uuid.UUID) ([]models.InteractionRecord, error)
	// LatestReviewRatings maps product to the rating of the user's most
	// recent review of it.
	LatestReviewRatings(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error)
	RecordEvent(ctx context.Context, record models.InteractionRecord) error
	RebuildFromCatalog(ctx context.Context) (RebuildResult, error)
	Count(ctx context.Context) (int64, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type RecommendationRepository interface {
	// ReplaceForUser deletes the user's stored list and inserts recs in one
	// transaction.
	ReplaceForUser(ctx context.Context, userID uuid.UUID, recs []models.ScoredProduct) error
	Count(ctx context.Context) (int64, error)
}

type SimilarityRepository interface {
	ReplaceAll(ctx context.Context, pairs []models.ProductSimilarity) error
	SimilarTo(ctx context.Context, productID uuid.UUID, limit int) ([]models.ProductSimilarity, error)
	Count(ctx context.Context) (int64, error)
}

// ModelRegistry is the lifecycle surface the services depend on.
type ModelRegistry interface {
	Train(ctx context.Context, records []models.InteractionRecord, products []models.Product) (*ml.Snapshot, error)
	Load(ctx context.Context) (*ml.Snapshot, bool)
	Invalidate()
	Status(ctx context.Context) models.ModelStatus
}

// Trainer runs a complete retrain. The orchestrator calls it when no
// snapshot can be loaded.
type Trainer interface {
	Retrain(ctx context.Context) (*TrainingResult, error)
}

// SimilarCache caches similar-product lists per snapshot version.
type SimilarCache interface {
	Get(ctx context.Context, version string, productID uuid.UUID, limit int) ([]models.ScoredProduct, bool)
	Set(ctx context.Context, version string, productID uuid.UUID, limit int, items []models.ScoredProduct)
}

// EventPublisher hands tracked events to the stream consumer.
type EventPublisher interface {
	PublishInteraction(ctx context.Context, event models.InteractionRecord) error
}

type RebuildResult struct {
	Reviews   int64 `json:"reviews"`
	Purchases int64 `json:"purchases"`
}

type TrainingResult struct {
	JobID        uuid.UUID `json:"job_id"`
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Users        int       `json:"users"`
	Products     int       `json:"products"`
	Similarities int       `json:"similarities"`
	Duration     string    `json:"duration"`
}
