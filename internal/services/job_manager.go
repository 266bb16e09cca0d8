package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job kinds.
const (
	JobKindTrain = "train"
)

type TrainingJob struct {
	JobID        uuid.UUID              `json:"job_id"`
	Kind         string                 `json:"kind"`
	Status       string                 `json:"status"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

func (j *TrainingJob) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobTracker records the progress of training runs.
type JobTracker interface {
	CreateJob(ctx context.Context, kind string) (*TrainingJob, error)
	StartJob(ctx context.Context, jobID uuid.UUID) error
	CompleteJob(ctx context.Context, jobID uuid.UUID, details map[string]interface{}) error
	FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*TrainingJob, error)
}

// JobManager keeps jobs in Redis for fast polling and in training_jobs for
// history. Redis is optional; PostgreSQL is authoritative.
type JobManager struct {
	pg     DatabaseQuerier
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewJobManager returns a manager whose finished jobs expire from Redis
// after ttl. A nil redis client disables the Redis copy.
func NewJobManager(pg DatabaseQuerier, redis *redis.Client, ttl time.Duration, logger *logrus.Logger) *JobManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JobManager{
		pg:     pg,
		redis:  redis,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (jm *JobManager) CreateJob(ctx context.Context, kind string) (*TrainingJob, error) {
	now := jm.now()
	job := &TrainingJob{
		JobID:     uuid.New(),
		Kind:      kind,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Details:   map[string]interface{}{},
	}

	if err := jm.insertJob(ctx, job); err != nil {
		return nil, err
	}
	jm.cacheJob(ctx, job)

	jm.logger.WithFields(logrus.Fields{
		"job_id": job.JobID,
		"kind":   kind,
	}).Info("Job created")

	return job, nil
}

func (jm *JobManager) GetJob(ctx context.Context, jobID uuid.UUID) (*TrainingJob, error) {
	if jm.redis != nil {
		job, err := jm.getCachedJob(ctx, jobID)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, redis.Nil) {
			jm.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to get job from Redis")
		}
	}

	job, err := jm.selectJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	jm.cacheJob(ctx, job)
	return job, nil
}

func (jm *JobManager) StartJob(ctx context.Context, jobID uuid.UUID) error {
	return jm.update(ctx, jobID, func(job *TrainingJob) {
		job.Status = JobStatusProcessing
	})
}

func (jm *JobManager) CompleteJob(ctx context.Context, jobID uuid.UUID, details map[string]interface{}) error {
	return jm.update(ctx, jobID, func(job *TrainingJob) {
		job.Status = JobStatusCompleted
		for k, v := range details {
			job.Details[k] = v
		}
	})
}

func (jm *JobManager) FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	return jm.update(ctx, jobID, func(job *TrainingJob) {
		job.Status = JobStatusFailed
		job.ErrorMessage = &errorMessage
	})
}

func (jm *JobManager) update(ctx context.Context, jobID uuid.UUID, apply func(*TrainingJob)) error {
	job, err := jm.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job.Details == nil {
		job.Details = map[string]interface{}{}
	}

	apply(job)
	job.UpdatedAt = jm.now()

	if err := jm.updateJob(ctx, job); err != nil {
		return err
	}
	jm.cacheJob(ctx, job)

	jm.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"status": job.Status,
	}).Debug("Job updated")

	return nil
}

// Redis operations

func jobKey(jobID uuid.UUID) string {
	return "job:" + jobID.String()
}

// cacheJob writes job to Redis. Active jobs never expire; finished ones
// expire after the configured TTL.
func (jm *JobManager) cacheJob(ctx context.Context, job *TrainingJob) {
	if jm.redis == nil {
		return
	}

	data, err := json.Marshal(job)
	if err != nil {
		jm.logger.WithError(err).WithField("job_id", job.JobID).Warn("Failed to marshal job")
		return
	}

	ttl := time.Duration(0)
	if job.Finished() {
		ttl = jm.ttl
	}
	if err := jm.redis.Set(ctx, jobKey(job.JobID), data, ttl).Err(); err != nil {
		jm.logger.WithError(err).WithField("job_id", job.JobID).Warn("Failed to store job in Redis")
	}
}

func (jm *JobManager) getCachedJob(ctx context.Context, jobID uuid.UUID) (*TrainingJob, error) {
	data, err := jm.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		return nil, err
	}

	var job TrainingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// PostgreSQL operations

func (jm *JobManager) insertJob(ctx context.Context, job *TrainingJob) error {
	details, err := json.Marshal(job.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal job details: %w", err)
	}

	_, err = jm.pg.Exec(ctx, `
		INSERT INTO training_jobs (id, kind, status, error_message, created_at, updated_at, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.JobID, job.Kind, job.Status, job.ErrorMessage, job.CreatedAt, job.UpdatedAt, details)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (jm *JobManager) selectJob(ctx context.Context, jobID uuid.UUID) (*TrainingJob, error) {
	var job TrainingJob
	var details []byte

	err := jm.pg.QueryRow(ctx, `
		SELECT id, kind, status, error_message, created_at, updated_at, details
		FROM training_jobs WHERE id = $1`, jobID).Scan(
		&job.JobID, &job.Kind, &job.Status, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &details,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, &job.Details); err != nil {
			jm.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to unmarshal job details")
		}
	}
	if job.Details == nil {
		job.Details = map[string]interface{}{}
	}
	return &job, nil
}

func (jm *JobManager) updateJob(ctx context.Context, job *TrainingJob) error {
	details, err := json.Marshal(job.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal job details: %w", err)
	}

	_, err = jm.pg.Exec(ctx, `
		UPDATE training_jobs SET status = $2, error_message = $3, updated_at = $4, details = $5
		WHERE id = $1`,
		job.JobID, job.Status, job.ErrorMessage, job.UpdatedAt, details)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}
