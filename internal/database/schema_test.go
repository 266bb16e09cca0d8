package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSchemaStatements(t *testing.T) {
	statements := SchemaStatements()

	require.Len(t, statements, 7)
	for _, stmt := range statements {
		assert.NotContains(t, stmt, ";")
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}

	joined := ""
	for _, stmt := range statements {
		joined += stmt + "\n"
	}
	for _, table := range []string{"user_product_interactions", "product_similarities", "user_product_recommendations", "training_jobs"} {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.NotContains(t, joined, "CREATE TABLE IF NOT EXISTS products ")
}

func TestEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	for _, stmt := range SchemaStatements() {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	mock.ExpectCommit()

	require.NoError(t, EnsureSchema(context.Background(), mock, quietLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_RollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	statements := SchemaStatements()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(statements[0])).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta(statements[1])).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = EnsureSchema(context.Background(), mock, quietLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREATE INDEX IF NOT EXISTS idx_interactions_user")
	assert.NoError(t, mock.ExpectationsWereMet())
}
