// Package classify maps failures from protected operations to a deterministic
// error category and a recommended recovery strategy. Classification is a pure
// function over the error value: identical errors always classify identically.
package classify

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Category identifies the failure mode of a classified error.
type Category int

const (
	// CategoryUnknown is the catch-all for errors with no recognized signal.
	// Treated conservatively: a small retry budget, then propagation.
	CategoryUnknown Category = iota

	// CategoryTransientNetwork covers timeouts, resets, refused connections
	// and dropped streams that typically heal on their own.
	CategoryTransientNetwork

	// CategoryRateLimited covers explicit throttling signals (HTTP 429,
	// "rate limit" markers). Retried with a longer minimum backoff.
	CategoryRateLimited

	// CategoryAuthPermanent covers authentication and permission failures.
	// Never retried; credentials do not fix themselves.
	CategoryAuthPermanent

	// CategoryValidationClient covers malformed or rejected input. Never
	// retried; the same request will fail the same way.
	CategoryValidationClient

	// CategoryResourceExhausted covers capacity signals such as exhausted
	// connection pools, full queues, and HTTP 503.
	CategoryResourceExhausted
)

// String returns the category name used in logs and metrics labels.
func (c Category) String() string {
	switch c {
	case CategoryTransientNetwork:
		return "transient_network"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryAuthPermanent:
		return "auth_permanent"
	case CategoryValidationClient:
		return "validation_client"
	case CategoryResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// Retryable reports whether the category is worth retrying by default.
func (c Category) Retryable() bool {
	switch c {
	case CategoryAuthPermanent, CategoryValidationClient:
		return false
	default:
		return true
	}
}

// Strategy is the recovery action recommended for a classified error.
type Strategy int

const (
	// StrategyFailFast propagates the error immediately, no retries.
	StrategyFailFast Strategy = iota

	// StrategyRetryImmediate retries without waiting between attempts.
	StrategyRetryImmediate

	// StrategyRetryBackoff retries with a growing delay between attempts.
	StrategyRetryBackoff

	// StrategyCircuitBreak stops calling the dependency for a cooldown.
	StrategyCircuitBreak

	// StrategyFallback switches to a degraded substitute result.
	StrategyFallback
)

// String returns the strategy name used in logs and metrics labels.
func (s Strategy) String() string {
	switch s {
	case StrategyRetryImmediate:
		return "retry_immediate"
	case StrategyRetryBackoff:
		return "retry_backoff"
	case StrategyCircuitBreak:
		return "circuit_break"
	case StrategyFallback:
		return "fallback"
	default:
		return "fail_fast"
	}
}

// Classification pairs a failure category with its recommended recovery.
type Classification struct {
	Category Category
	Strategy Strategy
}

// StatusError carries an HTTP-style status code from a guarded call so the
// classifier can map it without depending on the transport. RetryAfter is
// optional and comes from a Retry-After header or equivalent hint.
type StatusError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewStatusError creates a StatusError for the given code and message.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{StatusCode: code, Message: message}
}

// Classify maps an error to its category and recommended recovery strategy.
// The mapping is total: every non-nil error resolves to some category, with
// CategoryUnknown as the fallback. Classify(nil) returns the zero value.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	// Caller cancellation is not a dependency failure; retrying cannot help.
	if errors.Is(err, context.Canceled) {
		return Classification{Category: CategoryUnknown, Strategy: StrategyFailFast}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resolve(categoryForStatus(statusErr.StatusCode))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return resolve(categoryForSQLState(pgErr.Code))
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return resolve(CategoryTransientNetwork)
	}

	// Deadline expiry on the operation side is a plain timeout. The retry
	// loop separately aborts when the caller's own context is done.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return resolve(CategoryTransientNetwork)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return resolve(CategoryTransientNetwork)
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return resolve(CategoryTransientNetwork)
	}

	if cat, ok := categoryForMessage(err.Error()); ok {
		return resolve(cat)
	}

	return resolve(CategoryUnknown)
}

// RetryAfterHint extracts an explicit retry-after delay from the error, if
// the failing dependency supplied one.
func RetryAfterHint(err error) (time.Duration, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter, true
	}

	var hinted interface{ RetryAfter() time.Duration }
	if errors.As(err, &hinted) {
		if d := hinted.RetryAfter(); d > 0 {
			return d, true
		}
	}

	return 0, false
}

// resolve maps a category to its recommended strategy.
func resolve(cat Category) Classification {
	switch cat {
	case CategoryAuthPermanent, CategoryValidationClient:
		return Classification{Category: cat, Strategy: StrategyFailFast}
	default:
		return Classification{Category: cat, Strategy: StrategyRetryBackoff}
	}
}

func categoryForStatus(code int) Category {
	switch {
	case code == 429:
		return CategoryRateLimited
	case code == 401 || code == 403:
		return CategoryAuthPermanent
	case code == 503 || code == 507:
		return CategoryResourceExhausted
	case code == 408:
		return CategoryTransientNetwork
	case code >= 500 && code < 600:
		return CategoryTransientNetwork
	case code >= 400 && code < 500:
		return CategoryValidationClient
	default:
		return CategoryUnknown
	}
}

// categoryForSQLState maps Postgres SQLSTATE codes (pgconn.PgError.Code).
// Serialization failures and deadlocks are retryable by definition.
func categoryForSQLState(code string) Category {
	if code == "40001" || code == "40P01" {
		return CategoryTransientNetwork
	}
	if len(code) < 2 {
		return CategoryUnknown
	}
	switch code[:2] {
	case "08", "57":
		return CategoryTransientNetwork
	case "53":
		return CategoryResourceExhausted
	case "28":
		return CategoryAuthPermanent
	case "22", "23", "42":
		return CategoryValidationClient
	default:
		return CategoryUnknown
	}
}

// messagePatterns is checked in order: auth markers must precede the generic
// validation markers ("invalid api key" contains "invalid").
var messagePatterns = []struct {
	marker   string
	category Category
}{
	{"rate limit", CategoryRateLimited},
	{"too many requests", CategoryRateLimited},
	{"throttl", CategoryRateLimited},
	{"unauthorized", CategoryAuthPermanent},
	{"forbidden", CategoryAuthPermanent},
	{"invalid api key", CategoryAuthPermanent},
	{"authentication", CategoryAuthPermanent},
	{"permission denied", CategoryAuthPermanent},
	{"quota exceeded", CategoryResourceExhausted},
	{"resource exhausted", CategoryResourceExhausted},
	{"too many connections", CategoryResourceExhausted},
	{"pool exhausted", CategoryResourceExhausted},
	{"out of memory", CategoryResourceExhausted},
	{"timeout", CategoryTransientNetwork},
	{"timed out", CategoryTransientNetwork},
	{"connection refused", CategoryTransientNetwork},
	{"connection reset", CategoryTransientNetwork},
	{"no such host", CategoryTransientNetwork},
	{"broken pipe", CategoryTransientNetwork},
	{"temporarily unavailable", CategoryTransientNetwork},
	{"service unavailable", CategoryTransientNetwork},
	{"validation", CategoryValidationClient},
	{"malformed", CategoryValidationClient},
	{"invalid", CategoryValidationClient},
	{"not found", CategoryValidationClient},
}

func categoryForMessage(msg string) (Category, bool) {
	msg = strings.ToLower(msg)
	for _, p := range messagePatterns {
		if strings.Contains(msg, p.marker) {
			return p.category, true
		}
	}
	return CategoryUnknown, false
}
