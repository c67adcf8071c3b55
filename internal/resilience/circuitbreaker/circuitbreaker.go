// Package circuitbreaker gates calls to failing dependencies so they get a
// cooldown instead of a pile-on. One breaker guards one named component; the
// registry owns the instances and drives Allow/RecordSuccess/RecordFailure
// around every attempt.
package circuitbreaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls are allowed.
	// This is the normal operating state.
	StateClosed State = iota

	// StateOpen indicates the circuit is open due to consecutive failures.
	// Calls are rejected without invoking the protected operation until
	// the open duration elapses.
	StateOpen

	// StateHalfOpen indicates the circuit is testing recovery. A bounded
	// number of probe calls are allowed through; one failure reopens the
	// circuit, enough consecutive successes close it.
	StateHalfOpen
)

// String returns a string representation of the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen marks denial errors produced while a circuit is not accepting
// calls. Use errors.Is(err, ErrOpen) to distinguish breaker denials from
// failures of the protected operation itself.
var ErrOpen = errors.New("circuit breaker open")

// OpenError reports that a call was rejected by the breaker rather than
// failed by the protected operation.
type OpenError struct {
	// Component is the breaker name the call was keyed on.
	Component string

	// State is the breaker state at the time of denial.
	State State

	// RetryIn is the remaining cooldown when denied in the open state.
	RetryIn time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("circuit breaker half-open for %s: probe limit reached", e.Component)
	}
	return fmt.Sprintf("circuit breaker open for %s: retry in %s", e.Component, e.RetryIn)
}

// Unwrap lets errors.Is(err, ErrOpen) match any denial.
func (e *OpenError) Unwrap() error {
	return ErrOpen
}

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name identifies the protected component in logs and metrics
	Name string

	// FailureThreshold is the number of consecutive failures required to
	// open the circuit. Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive probe successes
	// required to close the circuit from half-open. Default: 2
	SuccessThreshold int

	// HalfOpenMaxProbes caps how many probe calls may be in flight at
	// once while half-open. Default: 1
	HalfOpenMaxProbes int

	// OpenDuration is how long the circuit stays open before the next
	// call is admitted as a probe. Default: 30 seconds
	OpenDuration time.Duration

	// Clock provides time abstraction for testing. Default: SystemClock
	Clock Clock

	// OnStateChange, if set, observes every state transition. It runs
	// outside the breaker lock, so it may safely call back into the
	// breaker.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		FailureThreshold:  5,
		SuccessThreshold:  2,
		HalfOpenMaxProbes: 1,
		OpenDuration:      30 * time.Second,
	}
}

// JobBoardConfig returns configuration optimized for job board fetching.
// Boards rate-limit and hiccup often, so recovery is probed generously.
func JobBoardConfig() Config {
	return Config{
		Name:              "job-board",
		FailureThreshold:  5,
		SuccessThreshold:  2,
		HalfOpenMaxProbes: 2,
		OpenDuration:      60 * time.Second,
	}
}

// ScoringAPIConfig returns configuration optimized for LLM scoring calls.
// Trips early to avoid burning paid requests against a failing API.
func ScoringAPIConfig() Config {
	return Config{
		Name:              "scoring-api",
		FailureThreshold:  3,
		SuccessThreshold:  1,
		HalfOpenMaxProbes: 1,
		OpenDuration:      60 * time.Second,
	}
}

// DatabaseConfig returns configuration optimized for database operations.
func DatabaseConfig() Config {
	return Config{
		Name:              "database",
		FailureThreshold:  5,
		SuccessThreshold:  2,
		HalfOpenMaxProbes: 1,
		OpenDuration:      15 * time.Second,
	}
}

// NotifyConfig returns configuration optimized for notification delivery.
func NotifyConfig() Config {
	return Config{
		Name:              "notifier",
		FailureThreshold:  5,
		SuccessThreshold:  1,
		HalfOpenMaxProbes: 1,
		OpenDuration:      120 * time.Second,
	}
}

// Breaker is a per-component circuit breaker.
//
// State transitions:
//   - Closed -> Open: FailureThreshold consecutive failures
//   - Open -> HalfOpen: first call arriving after OpenDuration
//   - HalfOpen -> Closed: SuccessThreshold consecutive probe successes
//   - HalfOpen -> Open: any probe failure
//
// Allow, RecordSuccess and RecordFailure are the only mutations and are
// serialized by one mutex, so concurrent callers always observe a
// consistent transition sequence.
type Breaker struct {
	config Config

	mu             sync.Mutex
	state          State
	failureCount   int
	successCount   int
	probesInFlight int
	openedAt       time.Time
	lastFailure    time.Time
	lastTransition time.Time
}

// New creates a circuit breaker with the given configuration.
//
// Zero-value config fields are replaced with defaults: FailureThreshold 5,
// SuccessThreshold 2, HalfOpenMaxProbes 1, OpenDuration 30s, SystemClock.
func New(cfg Config) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 1
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = &SystemClock{}
	}

	return &Breaker{
		config:         cfg,
		state:          StateClosed,
		lastTransition: cfg.Clock.Now(),
	}
}

// Allow reports whether a call may proceed. In the open state the first
// call after OpenDuration flips the circuit to half-open and is admitted as
// a probe; while half-open, admission is bounded so that no more than
// HalfOpenMaxProbes probes are ever in flight at once.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true

	case StateOpen:
		now := b.config.Clock.Now()
		if now.Sub(b.openedAt) < b.config.OpenDuration {
			b.mu.Unlock()
			return false
		}
		from := b.transition(StateHalfOpen, now)
		b.probesInFlight = 1
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return true

	default: // StateHalfOpen
		if b.probesInFlight >= b.config.HalfOpenMaxProbes {
			b.mu.Unlock()
			return false
		}
		b.probesInFlight++
		b.mu.Unlock()
		return true
	}
}

// RecordSuccess records a successful call outcome.
//
// In the closed state it resets the consecutive failure count. While
// half-open it releases the probe slot and closes the circuit once
// SuccessThreshold consecutive probes have succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
		b.mu.Unlock()

	case StateHalfOpen:
		b.releaseProbe()
		b.successCount++
		if b.successCount < b.config.SuccessThreshold {
			b.mu.Unlock()
			return
		}
		from := b.transition(StateClosed, b.config.Clock.Now())
		b.mu.Unlock()
		b.notify(from, StateClosed)

	default: // StateOpen: stale outcome from a probe that lost the race
		b.releaseProbe()
		b.mu.Unlock()
	}
}

// RecordFailure records a failed call outcome.
//
// In the closed state it opens the circuit once FailureThreshold
// consecutive failures accumulate. Any half-open probe failure reopens the
// circuit immediately and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	now := b.config.Clock.Now()
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount < b.config.FailureThreshold {
			b.mu.Unlock()
			return
		}
		b.openedAt = now
		from := b.transition(StateOpen, now)
		b.mu.Unlock()
		b.notify(from, StateOpen)

	case StateHalfOpen:
		b.openedAt = now
		from := b.transition(StateOpen, now)
		b.mu.Unlock()
		b.notify(from, StateOpen)

	default: // StateOpen
		b.releaseProbe()
		b.mu.Unlock()
	}
}

// State returns the current circuit state. Reading the state does not
// trigger the open-to-half-open transition; that happens on the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the name of the protected component.
func (b *Breaker) Name() string {
	return b.config.Name
}

// Config returns the breaker configuration after defaulting.
func (b *Breaker) Config() Config {
	return b.config
}

// Denial builds the error a caller should receive when Allow returned
// false, carrying the remaining cooldown when the circuit is open.
func (b *Breaker) Denial() *OpenError {
	b.mu.Lock()
	defer b.mu.Unlock()

	denial := &OpenError{Component: b.config.Name, State: b.state}
	if b.state == StateOpen {
		remaining := b.config.OpenDuration - b.config.Clock.Now().Sub(b.openedAt)
		if remaining < 0 {
			remaining = 0
		}
		denial.RetryIn = remaining
	}
	return denial
}

// Reset returns the circuit breaker to the closed state.
//
// This is useful for testing or manual intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.probesInFlight = 0
	b.openedAt = time.Time{}
	b.lastFailure = time.Time{}
	b.lastTransition = b.config.Clock.Now()
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

// Stats is a point-in-time snapshot of breaker counters.
type Stats struct {
	State               State
	ConsecutiveFailures int
	ProbeSuccesses      int
	ProbesInFlight      int
	OpenedAt            time.Time
	LastFailureTime     time.Time
	LastStateChange     time.Time
	TimeSinceLastChange time.Duration
}

// Stats returns current circuit breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Clock.Now()
	return Stats{
		State:               b.state,
		ConsecutiveFailures: b.failureCount,
		ProbeSuccesses:      b.successCount,
		ProbesInFlight:      b.probesInFlight,
		OpenedAt:            b.openedAt,
		LastFailureTime:     b.lastFailure,
		LastStateChange:     b.lastTransition,
		TimeSinceLastChange: now.Sub(b.lastTransition),
	}
}

// transition moves to the target state and resets per-state counters.
// Callers must hold b.mu; the returned previous state is reported to
// notify after unlocking.
func (b *Breaker) transition(to State, now time.Time) State {
	from := b.state
	b.state = to
	b.lastTransition = now

	switch to {
	case StateClosed:
		b.failureCount = 0
		b.successCount = 0
		b.probesInFlight = 0
	case StateOpen:
		b.successCount = 0
		b.probesInFlight = 0
	case StateHalfOpen:
		b.successCount = 0
		b.probesInFlight = 0
	}
	return from
}

// releaseProbe frees a probe slot. A probe that outlives a full
// open/half-open cycle can decrement the next cycle's count, so the slot
// count is clamped at zero; operations are expected to finish well within
// OpenDuration.
func (b *Breaker) releaseProbe() {
	if b.probesInFlight > 0 {
		b.probesInFlight--
	}
}

// notify logs a transition and invokes the configured observer. Runs
// without holding the lock.
func (b *Breaker) notify(from, to State) {
	slog.Warn("circuit breaker state changed",
		slog.String("circuit", b.config.Name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Duration("open_duration", b.config.OpenDuration))

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, from, to)
	}
}
