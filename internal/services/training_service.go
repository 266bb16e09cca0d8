package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/ml"
)

// Training outcomes reported to metrics.
const (
	OutcomeSuccess      = "success"
	OutcomeConflict     = "conflict"
	OutcomeInsufficient = "insufficient_data"
	OutcomeTimeout      = "timeout"
	OutcomeError        = "error"
)

// SimilarityRebuilder refreshes the similarity table after training.
type SimilarityRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// TrainingService runs one complete retrain: read the catalog and the
// interactions, fit and persist a snapshot, then refresh the similarity
// table.
type TrainingService struct {
	registry     ModelRegistry
	catalog      CatalogReader
	interactions InteractionRepository
	similarities SimilarityRebuilder
	jobs         JobTracker
	metrics      *MetricsCollector
	timeout      time.Duration
	logger       *logrus.Logger

	now func() time.Time
}

type TrainingDeps struct {
	Registry     ModelRegistry
	Catalog      CatalogReader
	Interactions InteractionRepository
	Similarities SimilarityRebuilder
	Jobs         JobTracker
	Metrics      *MetricsCollector
}

func NewTrainingService(deps TrainingDeps, timeout time.Duration, logger *logrus.Logger) *TrainingService {
	return &TrainingService{
		registry:     deps.Registry,
		catalog:      deps.Catalog,
		interactions: deps.Interactions,
		similarities: deps.Similarities,
		jobs:         deps.Jobs,
		metrics:      deps.Metrics,
		timeout:      timeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Retrain trains under the configured timeout. Errors wrap
// ml.ErrTrainingConflict, ml.ErrDataInsufficient or
// context.DeadlineExceeded where those apply.
func (s *TrainingService) Retrain(ctx context.Context) (*TrainingResult, error) {
	start := s.now()
	jobID := s.createJob(ctx)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.train(ctx, jobID)
	duration := s.now().Sub(start)
	if err != nil {
		s.metrics.RecordTraining(trainingOutcome(err), duration)
		s.failJob(jobID, err)
		s.logger.WithError(err).WithField("job_id", jobID).Warn("Training failed")
		return nil, err
	}

	result.JobID = jobID
	result.Duration = duration.String()
	s.metrics.RecordTraining(OutcomeSuccess, duration)

	if s.jobs != nil && jobID != uuid.Nil {
		details := map[string]interface{}{
			"version":      result.Version,
			"users":        result.Users,
			"products":     result.Products,
			"similarities": result.Similarities,
			"duration":     result.Duration,
		}
		if err := s.jobs.CompleteJob(context.WithoutCancel(ctx), jobID, details); err != nil {
			s.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to complete job")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":       jobID,
		"version":      result.Version,
		"users":        result.Users,
		"products":     result.Products,
		"similarities": result.Similarities,
		"duration":     duration,
	}).Info("Training completed")

	return result, nil
}

func (s *TrainingService) train(ctx context.Context, jobID uuid.UUID) (*TrainingResult, error) {
	if s.jobs != nil && jobID != uuid.Nil {
		if err := s.jobs.StartJob(ctx, jobID); err != nil {
			s.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to start job")
		}
	}

	records, err := s.interactions.AllInteractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	snap, err := s.registry.Train(ctx, records, products)
	if err != nil {
		return nil, err
	}

	result := &TrainingResult{
		Version:   snap.Version,
		TrainedAt: snap.TrainedAt,
		Users:     len(snap.Behavioral.Users()),
		Products:  len(snap.Content.Products()),
	}

	if s.similarities != nil {
		n, err := s.similarities.Rebuild(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to rebuild product similarities")
		}
		result.Similarities = n
	}
	return result, nil
}

func (s *TrainingService) createJob(ctx context.Context) uuid.UUID {
	if s.jobs == nil {
		return uuid.Nil
	}
	job, err := s.jobs.CreateJob(ctx, JobKindTrain)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to create training job")
		return uuid.Nil
	}
	return job.JobID
}

func (s *TrainingService) failJob(jobID uuid.UUID, cause error) {
	if s.jobs == nil || jobID == uuid.Nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.jobs.FailJob(ctx, jobID, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to mark job failed")
	}
}

func trainingOutcome(err error) string {
	switch {
	case errors.Is(err, ml.ErrTrainingConflict):
		return OutcomeConflict
	case errors.Is(err, ml.ErrDataInsufficient):
		return OutcomeInsufficient
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
