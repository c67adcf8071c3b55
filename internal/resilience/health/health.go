// Package health tracks call outcomes per component and derives a coarse
// status from failure streaks, a rolling failure-rate window, and the state
// of the component's circuit breaker.
package health

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/circuitbreaker"
)

// Status represents the derived health of a single component.
type Status int

const (
	// StatusHealthy indicates a low failure rate and no open circuit.
	StatusHealthy Status = iota

	// StatusDegraded indicates an elevated failure rate or a circuit
	// that is probing recovery.
	StatusDegraded

	// StatusUnhealthy indicates an open circuit or a high failure rate.
	StatusUnhealthy
)

// String returns a string representation of the health status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the string form produced by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "healthy":
		*s = StatusHealthy
	case "degraded":
		*s = StatusDegraded
	case "unhealthy":
		*s = StatusUnhealthy
	default:
		return fmt.Errorf("unknown health status %q", raw)
	}
	return nil
}

// Config holds the configuration for a health monitor.
type Config struct {
	// WindowSize is the number of most recent outcomes per component used
	// for the rolling failure rate. Default: 10
	WindowSize int

	// DegradedThreshold is the failure rate at which a component is
	// considered degraded. Default: 0.2
	DegradedThreshold float64

	// UnhealthyThreshold is the failure rate at which a component is
	// considered unhealthy. Default: 0.5
	UnhealthyThreshold float64

	// Clock provides time abstraction for testing. Default: SystemClock
	Clock circuitbreaker.Clock
}

// DefaultConfig returns a default configuration for health monitoring.
func DefaultConfig() Config {
	return Config{
		WindowSize:         10,
		DegradedThreshold:  0.2,
		UnhealthyThreshold: 0.5,
	}
}

// ComponentHealth is a point-in-time health snapshot for one component,
// serialized on the health endpoint and the status snapshot feed.
type ComponentHealth struct {
	Component            string    `json:"component"`
	Status               Status    `json:"status"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	FailureRate          float64   `json:"failure_rate"`
	WindowCount          int       `json:"window_count"`
	TotalCalls           uint64    `json:"total_calls"`
	TotalFailures        uint64    `json:"total_failures"`
	Circuit              string    `json:"circuit,omitempty"`
	LastError            string    `json:"last_error,omitempty"`
	LastFailureAt        time.Time `json:"last_failure_at"`
	LastSuccessAt        time.Time `json:"last_success_at"`
}

// componentState accumulates outcomes for one component. The window is a
// fixed ring buffer of the most recent outcomes; true marks a failure.
type componentState struct {
	window               []bool
	next                 int
	filled               int
	consecutiveFailures  int
	consecutiveSuccesses int
	totalCalls           uint64
	totalFailures        uint64
	lastError            string
	lastFailureAt        time.Time
	lastSuccessAt        time.Time
}

func (c *componentState) failureRate() float64 {
	if c.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < c.filled; i++ {
		if c.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(c.filled)
}

// Monitor derives per-component health from recorded call outcomes.
//
// Recording never fails and never blocks on anything but the monitor lock;
// status is computed on read, so stale components cost nothing between
// queries.
type Monitor struct {
	config Config

	mu         sync.RWMutex
	components map[string]*componentState
	circuits   map[string]func() circuitbreaker.State
}

// New creates a health monitor with the given configuration.
//
// Zero-value config fields are replaced with defaults: WindowSize 10,
// DegradedThreshold 0.2, UnhealthyThreshold 0.5, SystemClock.
func New(cfg Config) *Monitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = 0.2
	}
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = 0.5
	}
	if cfg.UnhealthyThreshold < cfg.DegradedThreshold {
		cfg.UnhealthyThreshold = cfg.DegradedThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = &circuitbreaker.SystemClock{}
	}

	return &Monitor{
		config:     cfg,
		components: make(map[string]*componentState),
		circuits:   make(map[string]func() circuitbreaker.State),
	}
}

// Record adds one call outcome for a component. A nil error counts as a
// success. Component state is created lazily on first record.
func (m *Monitor) Record(component string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.components[component]
	if !ok {
		st = &componentState{window: make([]bool, m.config.WindowSize)}
		m.components[component] = st
	}

	failed := err != nil
	st.window[st.next] = failed
	st.next = (st.next + 1) % len(st.window)
	if st.filled < len(st.window) {
		st.filled++
	}

	now := m.config.Clock.Now()
	st.totalCalls++
	if failed {
		st.totalFailures++
		st.consecutiveFailures++
		st.consecutiveSuccesses = 0
		st.lastError = err.Error()
		st.lastFailureAt = now
	} else {
		st.consecutiveSuccesses++
		st.consecutiveFailures = 0
		st.lastSuccessAt = now
	}
}

// BindCircuit associates a circuit state source with a component so status
// derivation can consult it. An open circuit forces unhealthy; a half-open
// circuit keeps the component at least degraded.
func (m *Monitor) BindCircuit(component string, state func() circuitbreaker.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuits[component] = state
}

// Status returns the current health snapshot for a component. A component
// with no recorded outcomes reports healthy with zeroed counters.
func (m *Monitor) Status(component string) ComponentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(component)
}

// Report returns a snapshot of every tracked component keyed by name.
func (m *Monitor) Report() map[string]ComponentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := make(map[string]ComponentHealth, len(m.components))
	for name := range m.components {
		report[name] = m.snapshot(name)
	}
	for name := range m.circuits {
		if _, ok := report[name]; !ok {
			report[name] = m.snapshot(name)
		}
	}
	return report
}

// Overall returns the worst status across all tracked components. A monitor
// with no components reports healthy.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overall := StatusHealthy
	for name := range m.components {
		if s := m.snapshot(name).Status; s > overall {
			overall = s
		}
	}
	for name := range m.circuits {
		if _, ok := m.components[name]; ok {
			continue
		}
		if s := m.snapshot(name).Status; s > overall {
			overall = s
		}
	}
	return overall
}

// snapshot builds the health view for one component. Callers must hold at
// least the read lock.
func (m *Monitor) snapshot(component string) ComponentHealth {
	snap := ComponentHealth{Component: component}

	if st, ok := m.components[component]; ok {
		snap.ConsecutiveFailures = st.consecutiveFailures
		snap.ConsecutiveSuccesses = st.consecutiveSuccesses
		snap.FailureRate = st.failureRate()
		snap.WindowCount = st.filled
		snap.TotalCalls = st.totalCalls
		snap.TotalFailures = st.totalFailures
		snap.LastError = st.lastError
		snap.LastFailureAt = st.lastFailureAt
		snap.LastSuccessAt = st.lastSuccessAt
	}

	circuit := circuitbreaker.StateClosed
	if state, ok := m.circuits[component]; ok {
		circuit = state()
		snap.Circuit = circuit.String()
	}

	snap.Status = m.derive(snap.FailureRate, circuit)
	return snap
}

// derive maps a failure rate and circuit state to a status. The circuit
// dominates: open means unhealthy regardless of the window, half-open means
// at least degraded.
func (m *Monitor) derive(rate float64, circuit circuitbreaker.State) Status {
	if circuit == circuitbreaker.StateOpen {
		return StatusUnhealthy
	}
	if rate >= m.config.UnhealthyThreshold {
		return StatusUnhealthy
	}
	if circuit == circuitbreaker.StateHalfOpen {
		return StatusDegraded
	}
	if rate >= m.config.DegradedThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}
