package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver implements the Observer interface using Prometheus.
//
// All metrics use a custom registry for better testability and isolation.
// The registry can be passed to promhttp.HandlerFor() to expose metrics.
type PrometheusObserver struct {
	registry *prometheus.Registry

	// attemptsTotal counts individual attempts by component, operation,
	// outcome ("success"/"failure") and classified failure category.
	attemptsTotal *prometheus.CounterVec

	// invocationsTotal counts completed invocations by final outcome
	// ("success", "failure", "denied", "aborted").
	invocationsTotal *prometheus.CounterVec

	// invocationDuration tracks wall time of whole invocations including
	// backoff waits, so buckets reach into the minutes.
	invocationDuration *prometheus.HistogramVec

	// invocationAttempts tracks how many attempts each invocation took.
	invocationAttempts *prometheus.HistogramVec

	// denialsTotal counts calls rejected by a circuit without reaching
	// the protected operation.
	denialsTotal *prometheus.CounterVec

	// circuitTransitions counts breaker state changes by edge.
	circuitTransitions *prometheus.CounterVec

	// circuitState tracks the breaker state per component.
	// Values:
	//   - 0: Closed (normal operation)
	//   - 1: Open (rejecting calls)
	//   - 2: Half-Open (testing recovery)
	circuitState *prometheus.GaugeVec

	// healthStatus tracks the derived health per component.
	// Values:
	//   - 0: Healthy
	//   - 1: Degraded
	//   - 2: Unhealthy
	healthStatus *prometheus.GaugeVec
}

// NewPrometheusObserver creates a PrometheusObserver with a custom registry.
//
// Using a custom registry (instead of the global prometheus.DefaultRegisterer)
// provides:
// - Better testability (isolated metrics per test)
// - No metric conflicts when running multiple instances
// - Explicit metric lifecycle management
func NewPrometheusObserver() *PrometheusObserver {
	registry := prometheus.NewRegistry()

	attemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_attempts_total",
			Help: "Total attempts against protected components",
		},
		[]string{"component", "operation", "outcome", "category"},
	)

	invocationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_invocations_total",
			Help: "Total completed invocations by final outcome",
		},
		[]string{"component", "operation", "outcome"},
	)

	invocationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_invocation_duration_seconds",
			Help:    "Wall time of invocations including backoff waits",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"component", "operation"},
	)

	invocationAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_invocation_attempts",
			Help:    "Attempts made per invocation",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
		},
		[]string{"component", "operation"},
	)

	denialsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuit_denials_total",
			Help: "Calls rejected by a circuit breaker",
		},
		[]string{"component", "operation"},
	)

	circuitTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuit_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	circuitState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	healthStatus := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_health_status",
			Help: "Derived component health (0=healthy, 1=degraded, 2=unhealthy)",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		attemptsTotal,
		invocationsTotal,
		invocationDuration,
		invocationAttempts,
		denialsTotal,
		circuitTransitions,
		circuitState,
		healthStatus,
	)

	return &PrometheusObserver{
		registry:           registry,
		attemptsTotal:      attemptsTotal,
		invocationsTotal:   invocationsTotal,
		invocationDuration: invocationDuration,
		invocationAttempts: invocationAttempts,
		denialsTotal:       denialsTotal,
		circuitTransitions: circuitTransitions,
		circuitState:       circuitState,
		healthStatus:       healthStatus,
	}
}

// Registry returns the Prometheus registry containing all resilience metrics.
//
// This can be used with promhttp.HandlerFor() to expose metrics:
//
//	observer := NewPrometheusObserver()
//	http.Handle("/metrics", promhttp.HandlerFor(observer.Registry(), promhttp.HandlerOpts{}))
func (m *PrometheusObserver) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAttempt records a single attempt outcome.
func (m *PrometheusObserver) RecordAttempt(component, operation, outcome, category string) {
	m.attemptsTotal.WithLabelValues(component, operation, outcome, category).Inc()
}

// RecordInvocation records a completed invocation.
func (m *PrometheusObserver) RecordInvocation(component, operation, outcome string, attempts int, duration time.Duration) {
	m.invocationsTotal.WithLabelValues(component, operation, outcome).Inc()
	m.invocationDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
	m.invocationAttempts.WithLabelValues(component, operation).Observe(float64(attempts))
}

// RecordDenial records a circuit breaker rejection.
func (m *PrometheusObserver) RecordDenial(component, operation string) {
	m.denialsTotal.WithLabelValues(component, operation).Inc()
}

// RecordCircuitTransition records one breaker state change.
func (m *PrometheusObserver) RecordCircuitTransition(component, from, to string) {
	m.circuitTransitions.WithLabelValues(component, from, to).Inc()
	m.RecordCircuitState(component, to)
}

// RecordCircuitState records the current breaker state.
//
// The state is mapped to a numeric gauge for Prometheus alerting:
//   - 0 = closed
//   - 1 = open
//   - 2 = half-open
func (m *PrometheusObserver) RecordCircuitState(component, state string) {
	var stateValue float64
	switch state {
	case "closed":
		stateValue = 0
	case "open":
		stateValue = 1
	case "half-open":
		stateValue = 2
	default:
		// Unknown state, default to closed
		stateValue = 0
	}
	m.circuitState.WithLabelValues(component).Set(stateValue)
}

// RecordHealthStatus records the derived health of a component.
//
// The status is mapped to a numeric gauge for Prometheus alerting:
//   - 0 = healthy
//   - 1 = degraded
//   - 2 = unhealthy
func (m *PrometheusObserver) RecordHealthStatus(component, status string) {
	var statusValue float64
	switch status {
	case "healthy":
		statusValue = 0
	case "degraded":
		statusValue = 1
	case "unhealthy":
		statusValue = 2
	default:
		statusValue = 0
	}
	m.healthStatus.WithLabelValues(component).Set(statusValue)
}
