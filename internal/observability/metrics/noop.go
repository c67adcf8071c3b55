package metrics

import "time"

// NoOpObserver implements the Observer interface with no-op implementations.
//
// This implementation is useful for:
// - Testing environments where metrics are not needed
// - Disabling metrics collection (e.g., development mode)
// - Benchmarking resilience primitives without metrics overhead
type NoOpObserver struct{}

// NewNoOpObserver creates a new NoOpObserver instance.
func NewNoOpObserver() *NoOpObserver {
	return &NoOpObserver{}
}

// RecordAttempt is a no-op implementation.
func (m *NoOpObserver) RecordAttempt(component, operation, outcome, category string) {
	// No-op
}

// RecordInvocation is a no-op implementation.
func (m *NoOpObserver) RecordInvocation(component, operation, outcome string, attempts int, duration time.Duration) {
	// No-op
}

// RecordDenial is a no-op implementation.
func (m *NoOpObserver) RecordDenial(component, operation string) {
	// No-op
}

// RecordCircuitTransition is a no-op implementation.
func (m *NoOpObserver) RecordCircuitTransition(component, from, to string) {
	// No-op
}

// RecordCircuitState is a no-op implementation.
func (m *NoOpObserver) RecordCircuitState(component, state string) {
	// No-op
}

// RecordHealthStatus is a no-op implementation.
func (m *NoOpObserver) RecordHealthStatus(component, status string) {
	// No-op
}
