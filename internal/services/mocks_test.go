package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/temcen/seasonrec/internal/ml"
	"github.com/temcen/seasonrec/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeCatalog serves a fixed product list.
type fakeCatalog struct {
	products []models.Product
	err      error
}

func (f *fakeCatalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	return f.products, f.err
}

func (f *fakeCatalog) ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[uuid.UUID]*models.Product)
	for i := range f.products {
		if _, ok := want[f.products[i].ID]; ok {
			p := f.products[i]
			out[p.ID] = &p
		}
	}
	return out, nil
}

func (f *fakeCatalog) ReviewedProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if p.ReviewCount > 0 {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvgRating != out[j].AvgRating {
			return out[i].AvgRating > out[j].AvgRating
		}
		return out[i].ReviewCount > out[j].ReviewCount
	})
	return out, f.err
}

func (f *fakeCatalog) SeasonalProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if p.HasSeasonTags() {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f *fakeCatalog) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if p.Featured {
			out = append(out, p)
		}
	}
	return out, f.err
}

type MockInteractionRepository struct {
	mock.Mock
}

func (m *MockInteractionRepository) AllInteractions(ctx context.Context) ([]models.InteractionRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.InteractionRecord), args.Error(1)
}

func (m *MockInteractionRepository) UserInteractions(ctx context.Context, userID uuid.UUID) ([]models.InteractionRecord, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.InteractionRecord), args.Error(1)
}

func (m *MockInteractionRepository) LatestReviewRatings(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(map[uuid.UUID]int), args.Error(1)
}

func (m *MockInteractionRepository) RecordEvent(ctx context.Context, record models.InteractionRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockInteractionRepository) RebuildFromCatalog(ctx context.Context) (RebuildResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(RebuildResult), args.Error(1)
}

func (m *MockInteractionRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockRecommendationRepository struct {
	mock.Mock
}

func (m *MockRecommendationRepository) ReplaceForUser(ctx context.Context, userID uuid.UUID, recs []models.ScoredProduct) error {
	return m.Called(ctx, userID, recs).Error(0)
}

func (m *MockRecommendationRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockSimilarityRepository struct {
	mock.Mock
}

func (m *MockSimilarityRepository) ReplaceAll(ctx context.Context, pairs []models.ProductSimilarity) error {
	return m.Called(ctx, pairs).Error(0)
}

func (m *MockSimilarityRepository) SimilarTo(ctx context.Context, productID uuid.UUID, limit int) ([]models.ProductSimilarity, error) {
	args := m.Called(ctx, productID, limit)
	return args.Get(0).([]models.ProductSimilarity), args.Error(1)
}

func (m *MockSimilarityRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockModelRegistry struct {
	mock.Mock
}

func (m *MockModelRegistry) Train(ctx context.Context, records []models.InteractionRecord, products []models.Product) (*ml.Snapshot, error) {
	args := m.Called(ctx, records, products)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ml.Snapshot), args.Error(1)
}

func (m *MockModelRegistry) Load(ctx context.Context) (*ml.Snapshot, bool) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*ml.Snapshot), args.Bool(1)
}

func (m *MockModelRegistry) Invalidate() {
	m.Called()
}

func (m *MockModelRegistry) Status(ctx context.Context) models.ModelStatus {
	return m.Called(ctx).Get(0).(models.ModelStatus)
}

type MockTrainer struct {
	mock.Mock
}

func (m *MockTrainer) Retrain(ctx context.Context) (*TrainingResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TrainingResult), args.Error(1)
}

type MockSimilarCache struct {
	mock.Mock
}

func (m *MockSimilarCache) Get(ctx context.Context, version string, productID uuid.UUID, limit int) ([]models.ScoredProduct, bool) {
	args := m.Called(ctx, version, productID, limit)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]models.ScoredProduct), args.Bool(1)
}

func (m *MockSimilarCache) Set(ctx context.Context, version string, productID uuid.UUID, limit int, items []models.ScoredProduct) {
	m.Called(ctx, version, productID, limit, items)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishInteraction(ctx context.Context, event models.InteractionRecord) error {
	return m.Called(ctx, event).Error(0)
}

type MockJobTracker struct {
	mock.Mock
}

func (m *MockJobTracker) CreateJob(ctx context.Context, kind string) (*TrainingJob, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TrainingJob), args.Error(1)
}

func (m *MockJobTracker) StartJob(ctx context.Context, jobID uuid.UUID) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockJobTracker) CompleteJob(ctx context.Context, jobID uuid.UUID, details map[string]interface{}) error {
	return m.Called(ctx, jobID, details).Error(0)
}

func (m *MockJobTracker) FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	return m.Called(ctx, jobID, errorMessage).Error(0)
}

func (m *MockJobTracker) GetJob(ctx context.Context, jobID uuid.UUID) (*TrainingJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TrainingJob), args.Error(1)
}

type MockSimilarityRebuilder struct {
	mock.Mock
}

func (m *MockSimilarityRebuilder) Rebuild(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockSimilarityGraph struct {
	mock.Mock
}

func (m *MockSimilarityGraph) ReplaceSimilarities(ctx context.Context, pairs []models.ProductSimilarity) error {
	return m.Called(ctx, pairs).Error(0)
}
