package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/pkg/models"
)

// EventRecorder accepts tracked view and cart events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, req *models.InteractionEventRequest) (*models.InteractionRecord, error)
}

type InteractionHandler struct {
	logger    *logrus.Logger
	recorder  EventRecorder
	validator *validator.Validate
}

func NewInteractionHandler(logger *logrus.Logger, recorder EventRecorder) *InteractionHandler {
	return &InteractionHandler{
		logger:    logger,
		recorder:  recorder,
		validator: validator.New(),
	}
}

// Record handles POST /interactions.
func (h *InteractionHandler) Record(c *gin.Context) {
	var req models.InteractionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Failed to bind interaction event")
		badRequest(c, "INVALID_REQUEST", "Invalid request format")
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		h.logger.WithError(err).Warn("Validation failed for interaction event")
		badRequest(c, "VALIDATION_FAILED", err.Error())
		return
	}

	record, err := h.recorder.RecordEvent(c.Request.Context(), &req)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":    req.UserID,
			"product_id": req.ProductID,
			"type":       req.Type,
		}).Error("Failed to record interaction event")
		respondError(c, http.StatusInternalServerError, "INTERACTION_FAILED", "Failed to record interaction")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data":    record,
		"message": "Interaction accepted",
	})
}
