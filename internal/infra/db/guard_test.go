package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/circuitbreaker"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/classify"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
)

func newTestGuard(t *testing.T, maxAttempts, failureThreshold int) (*Guard, sqlmock.Sqlmock, *resilience.Registry) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err, "failed to create mock db")
	t.Cleanup(func() { _ = mockDB.Close() })

	reg := resilience.New()
	retryCfg := retry.Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Strategy:    retry.StrategyFixed,
	}
	breakerCfg := circuitbreaker.Config{
		FailureThreshold:  failureThreshold,
		SuccessThreshold:  1,
		HalfOpenMaxProbes: 1,
		OpenDuration:      time.Minute,
	}

	return NewGuardWithConfig(mockDB, reg, retryCfg, breakerCfg), mock, reg
}

func TestNewGuard(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	g := NewGuard(mockDB, resilience.New())

	assert.Equal(t, circuitbreaker.StateClosed, g.State())
	assert.Same(t, mockDB, g.DB())
}

func TestGuard_QueryContext(t *testing.T) {
	g, mock, _ := newTestGuard(t, 3, 5)

	rows := sqlmock.NewRows([]string{"id", "title"}).
		AddRow(1, "Senior Go Engineer")
	mock.ExpectQuery("SELECT (.+) FROM jobs").WillReturnRows(rows)

	result, err := g.QueryContext(context.Background(), "SELECT id, title FROM jobs WHERE id = ?", 1)
	require.NoError(t, err)
	defer func() { _ = result.Close() }()

	require.True(t, result.Next(), "expected at least one row")

	var id int
	var title string
	require.NoError(t, result.Scan(&id, &title))
	assert.Equal(t, 1, id)
	assert.Equal(t, "Senior Go Engineer", title)

	assert.Equal(t, circuitbreaker.StateClosed, g.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuard_QueryContext_RetriesTransientFailure(t *testing.T) {
	g, mock, reg := newTestGuard(t, 3, 5)

	mock.ExpectQuery("SELECT (.+) FROM jobs").
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectQuery("SELECT (.+) FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	result, err := g.QueryContext(context.Background(), "SELECT id FROM jobs")
	require.NoError(t, err)
	_ = result.Close()

	assert.NoError(t, mock.ExpectationsWereMet())

	status := reg.Health().Status(Component)
	assert.Equal(t, uint64(2), status.TotalCalls)
	assert.Equal(t, uint64(1), status.TotalFailures)
}

func TestGuard_QueryContext_FailsFastOnConstraintViolation(t *testing.T) {
	g, mock, _ := newTestGuard(t, 3, 5)

	pgErr := &pgconn.PgError{
		Code:    "23505",
		Message: "duplicate key value violates unique constraint",
	}
	mock.ExpectQuery("INSERT INTO jobs").WillReturnError(pgErr)

	_, err := g.QueryContext(context.Background(), "INSERT INTO jobs (url) VALUES (?) RETURNING id", "https://example.com/j/1")
	require.Error(t, err)

	var retryErr *retry.Error
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 1, retryErr.Attempts, "constraint violations must not be retried")
	assert.Equal(t, classify.CategoryValidationClient, retryErr.Category)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuard_ExecContext(t *testing.T) {
	g, mock, _ := newTestGuard(t, 3, 5)

	mock.ExpectExec("UPDATE jobs SET seen").
		WithArgs(true, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := g.ExecContext(context.Background(), "UPDATE jobs SET seen = ? WHERE id = ?", true, 1)
	require.NoError(t, err)

	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuard_CircuitOpens_DeniesWithoutQuerying(t *testing.T) {
	g, mock, _ := newTestGuard(t, 1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT (.+)").WillReturnError(errors.New("connection refused"))
	}
	for i := 0; i < 2; i++ {
		_, err := g.QueryContext(ctx, "SELECT id FROM jobs")
		require.Error(t, err)
	}

	require.Equal(t, circuitbreaker.StateOpen, g.State())

	// No expectation is registered for this call: it must not reach the db.
	_, err := g.QueryContext(ctx, "SELECT id FROM jobs")
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)

	var openErr *circuitbreaker.OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, Component, openErr.Component)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuard_PingContext(t *testing.T) {
	g, mock, reg := newTestGuard(t, 3, 5)

	mock.ExpectPing()

	require.NoError(t, g.PingContext(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	status := reg.Health().Status(Component)
	assert.Equal(t, uint64(1), status.TotalCalls)
}

func TestGuard_QueryRowContext_BypassesProtection(t *testing.T) {
	g, mock, reg := newTestGuard(t, 3, 5)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(12)
	mock.ExpectQuery("SELECT COUNT(.+) FROM jobs").WillReturnRows(rows)

	var count int
	err := g.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM jobs").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	// The row path records nothing: no attempt ran under the registry.
	status := reg.Health().Status(Component)
	assert.Equal(t, uint64(0), status.TotalCalls)

	assert.NoError(t, mock.ExpectationsWereMet())
}
