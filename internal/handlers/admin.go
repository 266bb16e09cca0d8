package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/ml"
	"github.com/temcen/seasonrec/internal/services"
	"github.com/temcen/seasonrec/pkg/models"
)

// ModelAdmin retrains the model and reports its status.
type ModelAdmin interface {
	Retrain(ctx context.Context) (*services.TrainingResult, error)
	ModelStatus(ctx context.Context) models.ModelStatus
}

type SnapshotInvalidator interface {
	Invalidate()
}

type InteractionRebuilder interface {
	RebuildFromCatalog(ctx context.Context) (services.RebuildResult, error)
}

type JobReader interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*services.TrainingJob, error)
}

type AdminDeps struct {
	Models   ModelAdmin
	Registry SnapshotInvalidator
	Rebuild  InteractionRebuilder
	Jobs     JobReader
}

// AdminHandler serves the operator endpoints under /admin.
type AdminHandler struct {
	models   ModelAdmin
	registry SnapshotInvalidator
	rebuild  InteractionRebuilder
	jobs     JobReader
	logger   *logrus.Logger
}

func NewAdminHandler(deps AdminDeps, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		models:   deps.Models,
		registry: deps.Registry,
		rebuild:  deps.Rebuild,
		jobs:     deps.Jobs,
		logger:   logger,
	}
}

// Retrain handles POST /admin/model/retrain. It blocks until training
// finishes or the training timeout expires.
func (h *AdminHandler) Retrain(c *gin.Context) {
	result, err := h.models.Retrain(c.Request.Context())
	if err != nil {
		status, code := retrainError(err)
		h.logger.WithError(err).WithField("code", code).Warn("Retrain request failed")
		respondError(c, status, code, err.Error())
		return
	}

	trainedAt := result.TrainedAt
	c.JSON(http.StatusOK, models.RetrainResponse{
		Success:   true,
		JobID:     result.JobID,
		Message:   "Model retrained",
		Version:   result.Version,
		TrainedAt: &trainedAt,
	})
}

func retrainError(err error) (int, string) {
	switch {
	case errors.Is(err, ml.ErrTrainingConflict):
		return http.StatusConflict, "TRAINING_CONFLICT"
	case errors.Is(err, ml.ErrDataInsufficient):
		return http.StatusUnprocessableEntity, "DATA_INSUFFICIENT"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TRAINING_TIMEOUT"
	default:
		return http.StatusInternalServerError, "TRAINING_FAILED"
	}
}

// Status handles GET /admin/model/status.
func (h *AdminHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.models.ModelStatus(c.Request.Context()))
}

// Invalidate handles POST /admin/model/invalidate.
func (h *AdminHandler) Invalidate(c *gin.Context) {
	h.registry.Invalidate()
	h.logger.Info("Model snapshot invalidated")
	c.JSON(http.StatusOK, gin.H{"message": "Model snapshot invalidated"})
}

// RebuildInteractions handles POST /admin/interactions/rebuild.
func (h *AdminHandler) RebuildInteractions(c *gin.Context) {
	result, err := h.rebuild.RebuildFromCatalog(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to rebuild interactions")
		respondError(c, http.StatusInternalServerError, "REBUILD_FAILED", "Failed to rebuild interactions")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Job handles GET /admin/jobs/:jobId.
func (h *AdminHandler) Job(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		badRequest(c, "INVALID_JOB_ID", "Invalid job ID format")
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
	case err != nil:
		h.logger.WithError(err).WithField("job_id", jobID).Error("Failed to get job")
		respondError(c, http.StatusInternalServerError, "JOB_LOOKUP_FAILED", "Failed to get job")
	default:
		c.JSON(http.StatusOK, job)
	}
}
