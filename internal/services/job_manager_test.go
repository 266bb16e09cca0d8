package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobColumns = []string{"id", "kind", "status", "error_message", "created_at", "updated_at", "details"}

func newTestJobManager(t *testing.T) (*JobManager, pgxmock.PgxPoolIface) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	jm := NewJobManager(mockDB, nil, 0, logger)
	jm.now = func() time.Time { return fixedNow }
	return jm, mockDB
}

func TestJobManager_CreateJob(t *testing.T) {
	jm, mockDB := newTestJobManager(t)

	mockDB.ExpectExec("INSERT INTO training_jobs").
		WithArgs(pgxmock.AnyArg(), JobKindTrain, JobStatusQueued, pgxmock.AnyArg(), fixedNow, fixedNow, []byte("{}")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := jm.CreateJob(context.Background(), JobKindTrain)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.JobID)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.False(t, job.Finished())
	assert.Equal(t, 24*time.Hour, jm.ttl)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestJobManager_CreateJobError(t *testing.T) {
	jm, mockDB := newTestJobManager(t)

	mockDB.ExpectExec("INSERT INTO training_jobs").WillReturnError(errors.New("table missing"))

	_, err := jm.CreateJob(context.Background(), JobKindTrain)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert job")
}

func TestJobManager_GetJob(t *testing.T) {
	jobID := uuid.New()

	t.Run("found", func(t *testing.T) {
		jm, mockDB := newTestJobManager(t)

		mockDB.ExpectQuery("FROM training_jobs").
			WithArgs(jobID).
			WillReturnRows(pgxmock.NewRows(jobColumns).
				AddRow(jobID, JobKindTrain, JobStatusCompleted, nil, fixedNow, fixedNow, []byte(`{"users":3}`)))

		job, err := jm.GetJob(context.Background(), jobID)

		require.NoError(t, err)
		assert.Equal(t, JobStatusCompleted, job.Status)
		assert.Nil(t, job.ErrorMessage)
		assert.Equal(t, float64(3), job.Details["users"])
		assert.True(t, job.Finished())
	})

	t.Run("not found", func(t *testing.T) {
		jm, mockDB := newTestJobManager(t)

		mockDB.ExpectQuery("FROM training_jobs").WithArgs(jobID).WillReturnError(pgx.ErrNoRows)

		_, err := jm.GetJob(context.Background(), jobID)

		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestJobManager_StatusTransitions(t *testing.T) {
	jobID := uuid.New()
	message := "not enough interactions"

	tests := []struct {
		name           string
		apply          func(jm *JobManager) error
		expectedStatus string
		expectedError  interface{}
		expectedDetail []byte
	}{
		{
			name:           "start",
			apply:          func(jm *JobManager) error { return jm.StartJob(context.Background(), jobID) },
			expectedStatus: JobStatusProcessing,
			expectedError:  nil,
			expectedDetail: []byte("{}"),
		},
		{
			name: "complete",
			apply: func(jm *JobManager) error {
				return jm.CompleteJob(context.Background(), jobID, map[string]interface{}{"version": "v1"})
			},
			expectedStatus: JobStatusCompleted,
			expectedError:  nil,
			expectedDetail: []byte(`{"version":"v1"}`),
		},
		{
			name:           "fail",
			apply:          func(jm *JobManager) error { return jm.FailJob(context.Background(), jobID, message) },
			expectedStatus: JobStatusFailed,
			expectedError:  &message,
			expectedDetail: []byte("{}"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm, mockDB := newTestJobManager(t)

			mockDB.ExpectQuery("FROM training_jobs").
				WithArgs(jobID).
				WillReturnRows(pgxmock.NewRows(jobColumns).
					AddRow(jobID, JobKindTrain, JobStatusQueued, nil, fixedNow, fixedNow, []byte("{}")))

			errorArg := interface{}(pgxmock.AnyArg())
			if tt.expectedError == nil {
				errorArg = (*string)(nil)
			}
			mockDB.ExpectExec("UPDATE training_jobs").
				WithArgs(jobID, tt.expectedStatus, errorArg, fixedNow, tt.expectedDetail).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))

			require.NoError(t, tt.apply(jm))
			require.NoError(t, mockDB.ExpectationsWereMet())
		})
	}
}

func TestJobManager_UpdateMissingJob(t *testing.T) {
	jm, mockDB := newTestJobManager(t)
	jobID := uuid.New()

	mockDB.ExpectQuery("FROM training_jobs").WithArgs(jobID).WillReturnError(pgx.ErrNoRows)

	err := jm.StartJob(context.Background(), jobID)

	assert.ErrorIs(t, err, ErrJobNotFound)
}
