package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/temcen/seasonrec/internal/services"
	"github.com/temcen/seasonrec/pkg/models"
)

type MockRecommender struct {
	mock.Mock
}

func (m *MockRecommender) GetRecommendationsForUser(ctx context.Context, userID uuid.UUID, limit int) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecommendationResponse), args.Error(1)
}

func (m *MockRecommender) GetSimilarProducts(ctx context.Context, productID uuid.UUID, limit int, userID *uuid.UUID) (*models.SimilarProductsResponse, error) {
	args := m.Called(ctx, productID, limit, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SimilarProductsResponse), args.Error(1)
}

func (m *MockRecommender) GetSeasonalRecommendations(ctx context.Context, userID *uuid.UUID, limit int) (*models.ProductListResponse, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductListResponse), args.Error(1)
}

func (m *MockRecommender) GetFeaturedProducts(ctx context.Context, userID *uuid.UUID, limit int) (*models.ProductListResponse, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductListResponse), args.Error(1)
}

type MockEventRecorder struct {
	mock.Mock
}

func (m *MockEventRecorder) RecordEvent(ctx context.Context, req *models.InteractionEventRequest) (*models.InteractionRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InteractionRecord), args.Error(1)
}

type MockModelAdmin struct {
	mock.Mock
}

func (m *MockModelAdmin) Retrain(ctx context.Context) (*services.TrainingResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TrainingResult), args.Error(1)
}

func (m *MockModelAdmin) ModelStatus(ctx context.Context) models.ModelStatus {
	args := m.Called(ctx)
	return args.Get(0).(models.ModelStatus)
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) Invalidate() {
	m.Called()
}

type MockRebuilder struct {
	mock.Mock
}

func (m *MockRebuilder) RebuildFromCatalog(ctx context.Context) (services.RebuildResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(services.RebuildResult), args.Error(1)
}

type MockJobReader struct {
	mock.Mock
}

func (m *MockJobReader) GetJob(ctx context.Context, jobID uuid.UUID) (*services.TrainingJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TrainingJob), args.Error(1)
}

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context) *services.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(*services.HealthStatus)
}
