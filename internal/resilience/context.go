package resilience

import (
	"time"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/classify"
)

// AttemptOutcome labels how a recovery attempt ended.
type AttemptOutcome int

const (
	// OutcomeFailed marks an attempt whose operation returned an error.
	OutcomeFailed AttemptOutcome = iota

	// OutcomeSucceeded marks an invocation that recovered after at least
	// one failed attempt.
	OutcomeSucceeded

	// OutcomeAborted marks an invocation ended by something other than
	// the operation itself: a circuit denial or caller cancellation.
	OutcomeAborted
)

// String returns a string representation of the attempt outcome.
func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ErrorContext captures where and when a failure was observed.
type ErrorContext struct {
	// Component is the protected component the call was keyed on.
	Component string

	// Operation is the logical operation label supplied by the caller.
	Operation string

	// Timestamp is when the outcome was recorded.
	Timestamp time.Time

	// Attempt is the attempt number, starting at 1. Zero means the call
	// never reached the operation.
	Attempt int

	// Err is the underlying error, nil for a recovered invocation.
	Err error

	// Category is the classified failure category.
	Category classify.Category
}

// RecoveryAttempt records one recovery action taken by the registry: the
// failure it reacted to, the strategy chosen, the backoff applied, and how
// the attempt ended. A stream of these is delivered to the observer
// configured with WithRecoveryObserver.
type RecoveryAttempt struct {
	ErrorContext

	// Strategy is the recovery strategy applied to this failure.
	Strategy classify.Strategy

	// Delay is the backoff wait scheduled before the next attempt, zero
	// for terminal records.
	Delay time.Duration

	// Outcome reports how the attempt ended.
	Outcome AttemptOutcome
}
