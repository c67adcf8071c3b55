package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/circuitbreaker"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/classify"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
)

// CallOption customizes a single invocation.
type CallOption func(*callOptions)

type callOptions struct {
	operation  string
	retryCfg   *retry.Config
	breakerCfg *circuitbreaker.Config
}

// WithOperation sets the logical operation label used in logs, metrics and
// traces. Default: "call"
func WithOperation(name string) CallOption {
	return func(o *callOptions) {
		if name != "" {
			o.operation = name
		}
	}
}

// WithRetry overrides the registry's default retry policy for this call.
func WithRetry(cfg retry.Config) CallOption {
	return func(o *callOptions) {
		o.retryCfg = &cfg
	}
}

// WithBreaker supplies the breaker configuration used if this call is the
// one that creates the component's breaker. Breakers are configured once;
// on an existing component this option has no effect.
func WithBreaker(cfg circuitbreaker.Config) CallOption {
	return func(o *callOptions) {
		o.breakerCfg = &cfg
	}
}

// Invoke runs op under the full protection stack for the named component:
// the circuit breaker is consulted before every attempt, failures are
// classified and retried per the retry policy, and every outcome feeds the
// component's breaker and health record before the next attempt is gated.
//
// A call denied by the breaker returns a *circuitbreaker.OpenError without
// invoking op; use errors.Is(err, circuitbreaker.ErrOpen) to branch on it.
// Invoke is a function rather than a method so op can return a typed result.
func Invoke[T any](ctx context.Context, r *Registry, component string, op func(context.Context) (T, error), opts ...CallOption) (T, error) {
	call := callOptions{operation: "call"}
	for _, opt := range opts {
		opt(&call)
	}

	retryCfg := r.defaultRetry
	if call.retryCfg != nil {
		retryCfg = *call.retryCfg
	}

	breaker := r.breakerFor(component, call.breakerCfg)

	invocationID := uuid.NewString()
	logger := r.logger.With(
		slog.String("component", component),
		slog.String("operation", call.operation),
		slog.String("invocation_id", invocationID))

	ctx, span := r.tracer.Start(ctx, "resilience.invoke", trace.WithAttributes(
		attribute.String("resilience.component", component),
		attribute.String("resilience.operation", call.operation),
		attribute.String("resilience.invocation_id", invocationID)))
	defer span.End()

	start := r.clock.Now()
	attempts := 0

	// Each retried failure is reported to the recovery observer with the
	// delay the engine chose for it.
	callerOnRetry := retryCfg.OnRetry
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c := classify.Classify(err)
		r.observeRecovery(RecoveryAttempt{
			ErrorContext: ErrorContext{
				Component: component,
				Operation: call.operation,
				Timestamp: r.clock.Now(),
				Attempt:   attempt,
				Err:       err,
				Category:  c.Category,
			},
			Strategy: c.Strategy,
			Delay:    delay,
			Outcome:  OutcomeFailed,
		})
		if callerOnRetry != nil {
			callerOnRetry(attempt, delay, err)
		}
	}

	hooks := retry.Hooks{
		Gate: func() error {
			if breaker.Allow() {
				return nil
			}
			denial := breaker.Denial()
			r.metrics.RecordDenial(component, call.operation)
			logger.Warn("call rejected by circuit breaker",
				slog.String("state", denial.State.String()),
				slog.Duration("retry_in", denial.RetryIn))
			return denial
		},
		Report: func(err error) {
			attempts++
			if err == nil {
				breaker.RecordSuccess()
				r.metrics.RecordAttempt(component, call.operation, "success", "")
			} else {
				breaker.RecordFailure()
				r.metrics.RecordAttempt(component, call.operation, "failure",
					classify.Classify(err).Category.String())
			}
			r.monitor.Record(component, err)
			r.metrics.RecordHealthStatus(component, r.monitor.Status(component).Status.String())
		},
	}

	result, err := retry.DoWithHooks(ctx, retryCfg, hooks, op)

	outcome := invocationOutcome(err)
	r.metrics.RecordInvocation(component, call.operation, outcome, attempts, r.clock.Now().Sub(start))
	span.SetAttributes(
		attribute.Int("resilience.attempts", attempts),
		attribute.String("resilience.outcome", outcome))

	if err != nil {
		terminal := r.terminalAttempt(component, call.operation, attempts, err, outcome)
		r.observeRecovery(terminal)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if terminal.Category != classify.CategoryUnknown {
			span.SetAttributes(attribute.String("resilience.category", terminal.Category.String()))
		}
		logger.Warn("invocation failed",
			slog.String("outcome", outcome),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return result, err
	}

	if attempts > 1 {
		r.observeRecovery(RecoveryAttempt{
			ErrorContext: ErrorContext{
				Component: component,
				Operation: call.operation,
				Timestamp: r.clock.Now(),
				Attempt:   attempts,
			},
			Strategy: classify.StrategyRetryBackoff,
			Outcome:  OutcomeSucceeded,
		})
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Do is Invoke for operations without a result value.
func (r *Registry) Do(ctx context.Context, component string, fn func(context.Context) error, opts ...CallOption) error {
	_, err := Invoke(ctx, r, component, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// terminalAttempt builds the recovery record for a failed invocation.
func (r *Registry) terminalAttempt(component, operation string, attempts int, err error, outcome string) RecoveryAttempt {
	ra := RecoveryAttempt{
		ErrorContext: ErrorContext{
			Component: component,
			Operation: operation,
			Timestamp: r.clock.Now(),
			Attempt:   attempts,
			Err:       err,
		},
		Outcome: OutcomeFailed,
	}

	switch outcome {
	case "denied":
		ra.Strategy = classify.StrategyCircuitBreak
		ra.Outcome = OutcomeAborted
	case "aborted":
		ra.Outcome = OutcomeAborted
	default:
		var rerr *retry.Error
		if errors.As(err, &rerr) {
			ra.Attempt = rerr.Attempts
			ra.Category = rerr.Category
			ra.Strategy = classify.Classify(rerr.Err).Strategy
		}
	}
	return ra
}

// invocationOutcome maps the terminal error to a metrics label. Exhausted
// retries always count as failures even when the last error wraps a
// deadline; only cancellation of the backoff wait itself counts as aborted.
func invocationOutcome(err error) string {
	var rerr *retry.Error
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rerr):
		return "failure"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "denied"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "aborted"
	default:
		return "failure"
	}
}
