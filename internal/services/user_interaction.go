package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/pkg/models"
)

const defaultEventStrength = 1.0

// UserInteractionService accepts tracked view and cart events and rebuilds
// the review and purchase rows from the catalog.
type UserInteractionService struct {
	store     InteractionRepository
	publisher EventPublisher
	metrics   *MetricsCollector
	logger    *logrus.Logger

	now func() time.Time
}

// NewUserInteractionService returns a service that publishes events when
// publisher is set and writes them directly otherwise.
func NewUserInteractionService(store InteractionRepository, publisher EventPublisher, metrics *MetricsCollector, logger *logrus.Logger) *UserInteractionService {
	return &UserInteractionService{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordEvent turns a validated request into an interaction record and
// hands it to the stream, or stores it when no stream is configured.
func (s *UserInteractionService) RecordEvent(ctx context.Context, req *models.InteractionEventRequest) (*models.InteractionRecord, error) {
	record := models.InteractionRecord{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Type:      models.InteractionType(req.Type),
		Strength:  defaultEventStrength,
		CreatedAt: s.now(),
	}
	if req.Strength != nil {
		record.Strength = *req.Strength
	}
	if record.Type != models.InteractionView && record.Type != models.InteractionCart {
		return nil, fmt.Errorf("unsupported interaction type %q", req.Type)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishInteraction(ctx, record); err != nil {
			s.metrics.RecordInteractionEvent(req.Type, "error")
			return nil, err
		}
		s.metrics.RecordInteractionEvent(req.Type, "published")
		return &record, nil
	}

	if err := s.HandleEvent(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

// HandleEvent persists one event. It is the stream consumer's handler.
func (s *UserInteractionService) HandleEvent(ctx context.Context, record models.InteractionRecord) error {
	if err := s.store.RecordEvent(ctx, record); err != nil {
		s.metrics.RecordInteractionEvent(string(record.Type), "error")
		return err
	}
	s.metrics.RecordInteractionEvent(string(record.Type), "stored")

	s.logger.WithFields(logrus.Fields{
		"user_id":    record.UserID,
		"product_id": record.ProductID,
		"type":       record.Type,
	}).Debug("Interaction recorded")
	return nil
}

func (s *UserInteractionService) RebuildFromCatalog(ctx context.Context) (RebuildResult, error) {
	result, err := s.store.RebuildFromCatalog(ctx)
	if err != nil {
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"reviews":   result.Reviews,
		"purchases": result.Purchases,
	}).Info("Interactions rebuilt from catalog")
	return result, nil
}
