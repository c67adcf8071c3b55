// Package retry drives repeated execution of fallible operations under a
// bounded backoff policy. Failures are classified before each retry decision,
// so permanent errors short-circuit instead of burning attempts.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/classify"
)

// Strategy selects how the delay between attempts grows.
type Strategy int

const (
	// StrategyExponential doubles the delay each attempt, capped at MaxDelay.
	StrategyExponential Strategy = iota

	// StrategyFixed waits BaseDelay between every attempt.
	StrategyFixed

	// StrategyLinear waits BaseDelay multiplied by the attempt number.
	StrategyLinear

	// StrategyExponentialJitter is exponential backoff scaled by a random
	// factor in [1-JitterFactor, 1+JitterFactor], capped at MaxDelay.
	StrategyExponentialJitter
)

// String returns the strategy name used in logs and metrics labels.
func (s Strategy) String() string {
	switch s {
	case StrategyFixed:
		return "fixed"
	case StrategyLinear:
		return "linear"
	case StrategyExponentialJitter:
		return "exponential_jitter"
	default:
		return "exponential"
	}
}

// Config holds the configuration for retry logic. The zero value is usable:
// missing fields are replaced with defaults when the config is applied.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Strategy selects the backoff curve
	Strategy Strategy

	// JitterFactor spreads StrategyExponentialJitter delays across
	// [1-JitterFactor, 1+JitterFactor] (0.0 to 1.0)
	JitterFactor float64

	// RateLimitFloor is the minimum delay after a rate-limited failure.
	// An explicit retry-after hint from the dependency overrides it.
	RateLimitFloor time.Duration

	// RetryOn lists the categories worth retrying. Nil means every
	// category that classify considers retryable by default.
	RetryOn []classify.Category

	// OnRetry, if set, observes each scheduled retry before the wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		Strategy:       StrategyExponentialJitter,
		JitterFactor:   0.1,
		RateLimitFloor: 5 * time.Second,
	}
}

// JobBoardConfig returns configuration optimized for job board fetching.
// Aggressive retry for transient network issues.
func JobBoardConfig() Config {
	return Config{
		MaxAttempts:    5,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		Strategy:       StrategyExponentialJitter,
		JitterFactor:   0.1,
		RateLimitFloor: 10 * time.Second,
	}
}

// ScoringAPIConfig returns configuration optimized for LLM scoring calls.
// Moderate retry due to cost considerations, with generous rate-limit waits.
func ScoringAPIConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		MaxDelay:       60 * time.Second,
		Strategy:       StrategyExponentialJitter,
		JitterFactor:   0.1,
		RateLimitFloor: 15 * time.Second,
	}
}

// DatabaseConfig returns configuration optimized for database operations.
// Fast retry for transient connection issues.
func DatabaseConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       1 * time.Second,
		Strategy:       StrategyExponential,
		RateLimitFloor: 1 * time.Second,
	}
}

// NotifyConfig returns configuration optimized for notification delivery.
func NotifyConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       10 * time.Second,
		Strategy:       StrategyExponentialJitter,
		JitterFactor:   0.1,
		RateLimitFloor: 5 * time.Second,
	}
}

// normalized returns a copy with zero values replaced by defaults.
func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 1 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
	if c.RateLimitFloor <= 0 {
		c.RateLimitFloor = 5 * time.Second
	}
	return c
}

// retryable reports whether failures of the given category schedule a retry.
func (c Config) retryable(cat classify.Category) bool {
	if c.RetryOn == nil {
		return cat.Retryable()
	}
	for _, allowed := range c.RetryOn {
		if allowed == cat {
			return true
		}
	}
	return false
}

// Delay computes the wait scheduled after the given attempt (starting at 1).
// For the exponential strategies the sequence is non-decreasing before jitter
// and never exceeds MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	c = c.normalized()
	if attempt < 1 {
		attempt = 1
	}

	switch c.Strategy {
	case StrategyFixed:
		return c.BaseDelay
	case StrategyLinear:
		return time.Duration(attempt) * c.BaseDelay
	case StrategyExponentialJitter:
		d := exponentialDelay(c.BaseDelay, c.MaxDelay, attempt)
		return jitteredDelay(d, c.MaxDelay, c.JitterFactor)
	default:
		return exponentialDelay(c.BaseDelay, c.MaxDelay, attempt)
	}
}

// Error reports a terminal retry outcome: either the attempt budget ran out
// or the failure was classified as not worth retrying.
type Error struct {
	Attempts int
	Category classify.Category
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("operation failed after %d attempt(s) (%s): %v", e.Attempts, e.Category, e.Err)
}

// Unwrap returns the last error observed from the operation.
func (e *Error) Unwrap() error {
	return e.Err
}

// Hooks let a composition layer participate in the attempt loop without
// duplicating the policy logic.
type Hooks struct {
	// Gate runs before each attempt. A non-nil error aborts the loop
	// immediately and is returned to the caller unchanged, without being
	// classified or counted as an operation failure.
	Gate func() error

	// Report observes each attempt's outcome (nil on success). It runs
	// before the retry decision, so state it updates is visible to the
	// next Gate call.
	Report func(err error)
}

// Do executes op under the config's retry policy and returns its result.
// Success returns immediately. Failures are classified: non-retryable
// categories propagate after the first attempt, retryable ones wait for the
// computed backoff and try again until the attempt budget is spent. The
// backoff wait is the only blocking point and honors ctx cancellation.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	return DoWithHooks(ctx, cfg, Hooks{}, op)
}

// DoWithHooks is Do with a gate/report seam around each attempt. It is the
// composition point used to consult a circuit breaker before attempts and to
// feed outcomes to health tracking between them.
func DoWithHooks[T any](ctx context.Context, cfg Config, h Hooks, op func(context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.normalized()

	var lastErr error
	var lastCat classify.Category

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if h.Gate != nil {
			if err := h.Gate(); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if h.Report != nil {
			h.Report(err)
		}

		// Success - return immediately
		if err == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return result, nil
		}

		lastErr = err
		c := classify.Classify(err)
		lastCat = c.Category

		if !cfg.retryable(c.Category) || c.Strategy == classify.StrategyFailFast {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.String("category", c.Category.String()),
				slog.Any("error", err))
			return zero, &Error{Attempts: attempt, Category: c.Category, Err: err}
		}

		// Don't wait after last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay(attempt)
		if c.Category == classify.CategoryRateLimited {
			delay = rateLimitedDelay(delay, cfg, lastErr)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}

		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("category", c.Category.String()),
			slog.Any("error", err))

		// Wait with context cancellation support
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return zero, &Error{Attempts: cfg.MaxAttempts, Category: lastCat, Err: lastErr}
}

// WithBackoff executes fn with retry logic for call sites that only need an
// error result. It returns nil if fn succeeds, or the terminal retry error.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	_, err := Do(ctx, cfg, func(context.Context) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// rateLimitedDelay raises the computed delay to the configured floor, or to
// the dependency's own retry-after hint when it asks for a longer wait.
func rateLimitedDelay(delay time.Duration, cfg Config, err error) time.Duration {
	if delay < cfg.RateLimitFloor {
		delay = cfg.RateLimitFloor
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if hint, ok := classify.RetryAfterHint(err); ok && hint > delay {
		delay = hint
	}
	return delay
}

func exponentialDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// jitteredDelay scales a delay by a uniform random factor in
// [1-factor, 1+factor] to prevent synchronized retry storms.
func jitteredDelay(d, maxDelay time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	// #nosec G404 -- Using math/rand is acceptable for jitter calculation.
	// Cryptographic randomness is not required for retry backoff jitter.
	scale := 1 - factor + rand.Float64()*2*factor
	jittered := time.Duration(float64(d) * scale)
	if jittered > maxDelay {
		return maxDelay
	}
	if jittered < 0 {
		return 0
	}
	return jittered
}
