package models

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation sources reported to callers.
const (
	SourceModel      = "hybrid"
	SourceFallback   = "popular"
	SourceSimilarity = "similarity_table"
	SourceSeasonal   = "seasonal"
	SourceFeatured   = "featured"
)

type ScoredProduct struct {
	ProductID uuid.UUID `json:"product_id"`
	Score     float64   `json:"score"`
	Product   *Product  `json:"product,omitempty"`
}

type RecommendationResponse struct {
	UserID          uuid.UUID       `json:"user_id"`
	Recommendations []ScoredProduct `json:"recommendations"`
	Source          string          `json:"source"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

type SimilarProductsResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	Similar     []ScoredProduct `json:"similar"`
	Source      string          `json:"source"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type ProductListResponse struct {
	Products    []Product `json:"products"`
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`
}

type ProductSimilarity struct {
	Product1ID uuid.UUID `json:"product1_id" db:"product1_id"`
	Product2ID uuid.UUID `json:"product2_id" db:"product2_id"`
	Score      float64   `json:"similarity_score" db:"similarity_score"`
}

type UserProductRecommendation struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Score     float64   `json:"score" db:"score"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// HybridParameters are the blending knobs persisted with every snapshot.
type HybridParameters struct {
	BehavioralWeight float64 `json:"behavioral_weight" yaml:"behavioral_weight" mapstructure:"behavioral_weight"`
	ContentWeight    float64 `json:"content_weight" yaml:"content_weight" mapstructure:"content_weight"`
	SeasonalBoost    float64 `json:"seasonal_boost" yaml:"seasonal_boost" mapstructure:"seasonal_boost"`
	LocationBoost    float64 `json:"location_boost" yaml:"location_boost" mapstructure:"location_boost"`
}

func DefaultHybridParameters() HybridParameters {
	return HybridParameters{
		BehavioralWeight: 0.7,
		ContentWeight:    0.3,
		SeasonalBoost:    0.2,
		LocationBoost:    0.1,
	}
}

type ModelCounts struct {
	Interactions    int64 `json:"interactions"`
	Similarities    int64 `json:"similarities"`
	Recommendations int64 `json:"recommendations"`
}

type SnapshotBlobInfo struct {
	Name       string    `json:"name"`
	Exists     bool      `json:"exists"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

type ModelStatus struct {
	Trained       bool               `json:"trained"`
	State         string             `json:"state"`
	LastTrainedAt *time.Time         `json:"last_trained_at,omitempty"`
	Counts        ModelCounts        `json:"counts"`
	Snapshot      []SnapshotBlobInfo `json:"snapshot,omitempty"`
}

type RetrainResponse struct {
	Success   bool       `json:"success"`
	JobID     uuid.UUID  `json:"job_id"`
	Message   string     `json:"message"`
	Version   string     `json:"version,omitempty"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
}
