package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/seasonrec/internal/ml"
	"github.com/temcen/seasonrec/internal/services"
	"github.com/temcen/seasonrec/pkg/models"
)

type adminFixture struct {
	models   *MockModelAdmin
	registry *MockInvalidator
	rebuild  *MockRebuilder
	jobs     *MockJobReader
	router   *gin.Engine
}

func newAdminFixture() *adminFixture {
	gin.SetMode(gin.TestMode)
	f := &adminFixture{
		models:   new(MockModelAdmin),
		registry: new(MockInvalidator),
		rebuild:  new(MockRebuilder),
		jobs:     new(MockJobReader),
	}
	handler := NewAdminHandler(AdminDeps{
		Models:   f.models,
		Registry: f.registry,
		Rebuild:  f.rebuild,
		Jobs:     f.jobs,
	}, testLogger())

	f.router = gin.New()
	admin := f.router.Group("/api/v1/admin")
	admin.POST("/model/retrain", handler.Retrain)
	admin.GET("/model/status", handler.Status)
	admin.POST("/model/invalidate", handler.Invalidate)
	admin.POST("/interactions/rebuild", handler.RebuildInteractions)
	admin.GET("/jobs/:jobId", handler.Job)
	return f
}

func TestAdminHandler_Retrain(t *testing.T) {
	jobID := uuid.New()
	trainedAt := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		result       *services.TrainingResult
		err          error
		expectedCode int
		expectedBody string
	}{
		{
			name: "success",
			result: &services.TrainingResult{
				JobID:     jobID,
				Version:   "20260701T120000Z",
				TrainedAt: trainedAt,
			},
			expectedCode: http.StatusOK,
			expectedBody: jobID.String(),
		},
		{
			name:         "training already running",
			err:          fmt.Errorf("failed to acquire lock: %w", ml.ErrTrainingConflict),
			expectedCode: http.StatusConflict,
			expectedBody: "TRAINING_CONFLICT",
		},
		{
			name:         "not enough data",
			err:          ml.ErrDataInsufficient,
			expectedCode: http.StatusUnprocessableEntity,
			expectedBody: "DATA_INSUFFICIENT",
		},
		{
			name:         "timeout",
			err:          fmt.Errorf("failed to fit models: %w", context.DeadlineExceeded),
			expectedCode: http.StatusGatewayTimeout,
			expectedBody: "TRAINING_TIMEOUT",
		},
		{
			name:         "other failure",
			err:          errors.New("disk full"),
			expectedCode: http.StatusInternalServerError,
			expectedBody: "TRAINING_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture()
			if tt.err != nil {
				f.models.On("Retrain", mock.Anything).Return(nil, tt.err)
			} else {
				f.models.On("Retrain", mock.Anything).Return(tt.result, nil)
			}

			w := serve(f.router, http.MethodPost, "/api/v1/admin/model/retrain")

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			f.models.AssertExpectations(t)

			if tt.err == nil {
				var response models.RetrainResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.True(t, response.Success)
				assert.Equal(t, tt.result.Version, response.Version)
				require.NotNil(t, response.TrainedAt)
				assert.True(t, trainedAt.Equal(*response.TrainedAt))
			}
		})
	}
}

func TestAdminHandler_Status(t *testing.T) {
	f := newAdminFixture()
	f.models.On("ModelStatus", mock.Anything).Return(models.ModelStatus{
		Trained: true,
		State:   "ready",
		Counts:  models.ModelCounts{Interactions: 12},
	})

	w := serve(f.router, http.MethodGet, "/api/v1/admin/model/status")

	assert.Equal(t, http.StatusOK, w.Code)
	var status models.ModelStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Trained)
	assert.Equal(t, int64(12), status.Counts.Interactions)
}

func TestAdminHandler_Invalidate(t *testing.T) {
	f := newAdminFixture()
	f.registry.On("Invalidate").Return()

	w := serve(f.router, http.MethodPost, "/api/v1/admin/model/invalidate")

	assert.Equal(t, http.StatusOK, w.Code)
	f.registry.AssertCalled(t, "Invalidate")
}

func TestAdminHandler_RebuildInteractions(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newAdminFixture()
		f.rebuild.On("RebuildFromCatalog", mock.Anything).Return(services.RebuildResult{Reviews: 7, Purchases: 3}, nil)

		w := serve(f.router, http.MethodPost, "/api/v1/admin/interactions/rebuild")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"reviews":7,"purchases":3}`, w.Body.String())
	})

	t.Run("failure", func(t *testing.T) {
		f := newAdminFixture()
		f.rebuild.On("RebuildFromCatalog", mock.Anything).Return(services.RebuildResult{}, errors.New("tx aborted"))

		w := serve(f.router, http.MethodPost, "/api/v1/admin/interactions/rebuild")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "REBUILD_FAILED")
	})
}

func TestAdminHandler_Job(t *testing.T) {
	jobID := uuid.New()

	t.Run("found", func(t *testing.T) {
		f := newAdminFixture()
		f.jobs.On("GetJob", mock.Anything, jobID).Return(&services.TrainingJob{
			JobID:  jobID,
			Kind:   services.JobKindTrain,
			Status: services.JobStatusCompleted,
		}, nil)

		w := serve(f.router, http.MethodGet, "/api/v1/admin/jobs/"+jobID.String())

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), services.JobStatusCompleted)
	})

	t.Run("not found", func(t *testing.T) {
		f := newAdminFixture()
		f.jobs.On("GetJob", mock.Anything, jobID).Return(nil, services.ErrJobNotFound)

		w := serve(f.router, http.MethodGet, "/api/v1/admin/jobs/"+jobID.String())

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "JOB_NOT_FOUND")
	})

	t.Run("invalid id", func(t *testing.T) {
		f := newAdminFixture()

		w := serve(f.router, http.MethodGet, "/api/v1/admin/jobs/nope")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
