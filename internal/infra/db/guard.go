// Package db routes database/sql access through the resilience registry.
//
// Queries and statements run under the "database" component: the circuit
// breaker is consulted before every attempt, transient failures are retried
// per the configured policy, and each outcome feeds the component's health
// record. When the database is down the guard sheds load instead of piling
// connections onto it.
package db

import (
	"context"
	"database/sql"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/circuitbreaker"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
)

// Component is the registry component name database calls run under.
const Component = "database"

// Guard wraps a database connection with the resilience stack.
type Guard struct {
	db       *sql.DB
	registry *resilience.Registry
	retryCfg retry.Config
}

// NewGuard creates a guard over db using the database retry and breaker
// presets.
func NewGuard(db *sql.DB, reg *resilience.Registry) *Guard {
	return NewGuardWithConfig(db, reg, retry.DatabaseConfig(), circuitbreaker.DatabaseConfig())
}

// NewGuardWithConfig creates a guard with explicit retry and breaker
// policies. The breaker policy is fixed when the component's breaker is
// created, so construct guards before issuing calls under Component
// elsewhere.
func NewGuardWithConfig(db *sql.DB, reg *resilience.Registry, retryCfg retry.Config, breakerCfg circuitbreaker.Config) *Guard {
	reg.BreakerWithConfig(Component, breakerCfg)
	return &Guard{
		db:       db,
		registry: reg,
		retryCfg: retryCfg,
	}
}

// QueryContext executes a query with full protection. While the circuit is
// open it returns a *circuitbreaker.OpenError without hitting the database.
func (g *Guard) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return resilience.Invoke(ctx, g.registry, Component, func(ctx context.Context) (*sql.Rows, error) {
		return g.db.QueryContext(ctx, query, args...) //nolint:sqlclosecheck // rows ownership passes to the caller
	}, resilience.WithOperation("query"), resilience.WithRetry(g.retryCfg))
}

// ExecContext executes a statement with full protection. Statements are
// retried under the same policy as queries; callers running non-idempotent
// writes should construct the guard with a single-attempt retry config.
func (g *Guard) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return resilience.Invoke(ctx, g.registry, Component, func(ctx context.Context) (sql.Result, error) {
		return g.db.ExecContext(ctx, query, args...)
	}, resilience.WithOperation("exec"), resilience.WithRetry(g.retryCfg))
}

// PingContext verifies the connection with full protection. Health checkers
// poll it to feed the "database" component's record.
func (g *Guard) PingContext(ctx context.Context) error {
	return g.registry.Do(ctx, Component, func(ctx context.Context) error {
		return g.db.PingContext(ctx)
	}, resilience.WithOperation("ping"), resilience.WithRetry(g.retryCfg))
}

// QueryRowContext executes a query expected to return at most one row.
// sql.Row defers its error until Scan, so the call bypasses the breaker and
// retry policy entirely.
func (g *Guard) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return g.db.QueryRowContext(ctx, query, args...)
}

// State returns the current state of the database circuit breaker.
func (g *Guard) State() circuitbreaker.State {
	return g.registry.Breaker(Component).State()
}

// DB returns the underlying database connection for operations that must not
// run under the breaker, such as shutdown-time cleanup.
func (g *Guard) DB() *sql.DB {
	return g.db
}
