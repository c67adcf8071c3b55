// Package metrics provides observability for resilience operations.
//
// The Observer interface decouples the resilience core from the metrics
// backend; PrometheusObserver is the production implementation and
// NoOpObserver serves tests and metric-free deployments.
package metrics

import "time"

// Observer defines the interface for recording resilience metrics.
//
// Implementations can use Prometheus, StatsD, or custom metrics systems.
type Observer interface {
	// RecordAttempt records a single attempt against a protected
	// component.
	//
	// Parameters:
	//   - component: Protected component name (e.g., "scraper.greenhouse")
	//   - operation: Logical operation label (e.g., "fetch_jobs")
	//   - outcome: "success" or "failure"
	//   - category: Classified failure category, empty on success
	RecordAttempt(component, operation, outcome, category string)

	// RecordInvocation records a completed invocation including all of
	// its attempts and backoff waits.
	//
	// Parameters:
	//   - component: Protected component name
	//   - operation: Logical operation label
	//   - outcome: "success", "failure", "denied" or "aborted"
	//   - attempts: Number of attempts actually made
	//   - duration: Wall time across attempts and waits
	RecordInvocation(component, operation, outcome string, attempts int, duration time.Duration)

	// RecordDenial records a call rejected by an open or probing circuit
	// without reaching the protected operation.
	RecordDenial(component, operation string)

	// RecordCircuitTransition records one circuit breaker state change.
	RecordCircuitTransition(component, from, to string)

	// RecordCircuitState records the current state of a circuit breaker
	// as a gauge ("closed", "open" or "half-open").
	RecordCircuitState(component, state string)

	// RecordHealthStatus records the derived health of a component as a
	// gauge ("healthy", "degraded" or "unhealthy").
	RecordHealthStatus(component, status string)
}
