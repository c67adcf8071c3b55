package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewPrometheusObserver(t *testing.T) {
	observer := NewPrometheusObserver()

	if observer == nil {
		t.Fatal("NewPrometheusObserver() returned nil")
	}
	if observer.registry == nil {
		t.Error("registry should not be nil")
	}
}

func TestPrometheusObserver_Registry(t *testing.T) {
	observer := NewPrometheusObserver()

	// Record one of everything so all families show up in Gather()
	observer.RecordAttempt("db", "query", "failure", "transient_network")
	observer.RecordInvocation("db", "query", "success", 2, 150*time.Millisecond)
	observer.RecordDenial("scoring-api", "score_job")
	observer.RecordCircuitTransition("db", "closed", "open")
	observer.RecordCircuitState("db", "open")
	observer.RecordHealthStatus("db", "unhealthy")

	metricFamilies, err := observer.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	expectedMetrics := []string{
		"resilience_attempts_total",
		"resilience_invocations_total",
		"resilience_invocation_duration_seconds",
		"resilience_invocation_attempts",
		"resilience_circuit_denials_total",
		"resilience_circuit_transitions_total",
		"resilience_circuit_state",
		"resilience_health_status",
	}

	metricNames := make(map[string]bool)
	for _, mf := range metricFamilies {
		metricNames[mf.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		if !metricNames[expected] {
			t.Errorf("Expected metric %q not found in registry", expected)
		}
	}
}

func TestPrometheusObserver_RecordAttempt(t *testing.T) {
	observer := NewPrometheusObserver()

	observer.RecordAttempt("scraper.greenhouse", "fetch_jobs", "failure", "rate_limited")
	observer.RecordAttempt("scraper.greenhouse", "fetch_jobs", "failure", "rate_limited")
	observer.RecordAttempt("scraper.greenhouse", "fetch_jobs", "success", "")

	metricFamilies, err := observer.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "resilience_attempts_total" {
			continue
		}
		found = true

		for _, m := range mf.GetMetric() {
			labels := getLabels(m)

			if labels["outcome"] == "failure" && labels["category"] == "rate_limited" {
				if m.GetCounter().GetValue() != 2 {
					t.Errorf("Expected 2 rate-limited failures, got %v", m.GetCounter().GetValue())
				}
			}
			if labels["outcome"] == "success" {
				if m.GetCounter().GetValue() != 1 {
					t.Errorf("Expected 1 success, got %v", m.GetCounter().GetValue())
				}
			}
		}
	}

	if !found {
		t.Error("attempts_total metric not found")
	}
}

func TestPrometheusObserver_RecordInvocation(t *testing.T) {
	observer := NewPrometheusObserver()

	observer.RecordInvocation("db", "query", "success", 1, 5*time.Millisecond)
	observer.RecordInvocation("db", "query", "success", 3, 3*time.Second)
	observer.RecordInvocation("db", "query", "failure", 3, 7*time.Second)

	metricFamilies, err := observer.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "resilience_invocations_total":
			for _, m := range mf.GetMetric() {
				labels := getLabels(m)
				if labels["outcome"] == "success" && m.GetCounter().GetValue() != 2 {
					t.Errorf("Expected 2 successful invocations, got %v", m.GetCounter().GetValue())
				}
				if labels["outcome"] == "failure" && m.GetCounter().GetValue() != 1 {
					t.Errorf("Expected 1 failed invocation, got %v", m.GetCounter().GetValue())
				}
			}
		case "resilience_invocation_attempts":
			for _, m := range mf.GetMetric() {
				if m.GetHistogram().GetSampleCount() != 3 {
					t.Errorf("Expected 3 attempt samples, got %v", m.GetHistogram().GetSampleCount())
				}
			}
		}
	}
}

func TestPrometheusObserver_RecordCircuitState(t *testing.T) {
	observer := NewPrometheusObserver()

	tests := []struct {
		name          string
		state         string
		expectedValue float64
	}{
		{"closed state", "closed", 0},
		{"open state", "open", 1},
		{"half-open state", "half-open", 2},
		{"unknown state defaults to closed", "bogus", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer.RecordCircuitState("db", tt.state)

			metricFamilies, err := observer.registry.Gather()
			if err != nil {
				t.Fatalf("Gather() error = %v", err)
			}

			for _, mf := range metricFamilies {
				if mf.GetName() != "resilience_circuit_state" {
					continue
				}
				for _, m := range mf.GetMetric() {
					if getLabels(m)["component"] == "db" {
						if m.GetGauge().GetValue() != tt.expectedValue {
							t.Errorf("Expected circuit state %v, got %v", tt.expectedValue, m.GetGauge().GetValue())
						}
					}
				}
			}
		})
	}
}

func TestPrometheusObserver_RecordCircuitTransitionUpdatesState(t *testing.T) {
	observer := NewPrometheusObserver()

	observer.RecordCircuitTransition("notifier", "closed", "open")

	metricFamilies, err := observer.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var transitionCount, stateValue float64 = -1, -1
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "resilience_circuit_transitions_total":
			for _, m := range mf.GetMetric() {
				labels := getLabels(m)
				if labels["from"] == "closed" && labels["to"] == "open" {
					transitionCount = m.GetCounter().GetValue()
				}
			}
		case "resilience_circuit_state":
			for _, m := range mf.GetMetric() {
				if getLabels(m)["component"] == "notifier" {
					stateValue = m.GetGauge().GetValue()
				}
			}
		}
	}

	if transitionCount != 1 {
		t.Errorf("Expected 1 closed->open transition, got %v", transitionCount)
	}
	if stateValue != 1 {
		t.Errorf("Expected state gauge updated to 1 (open), got %v", stateValue)
	}
}

func TestPrometheusObserver_RecordHealthStatus(t *testing.T) {
	observer := NewPrometheusObserver()

	observer.RecordHealthStatus("db", "degraded")

	metricFamilies, err := observer.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, mf := range metricFamilies {
		if mf.GetName() != "resilience_health_status" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if getLabels(m)["component"] == "db" {
				if m.GetGauge().GetValue() != 1 {
					t.Errorf("Expected health gauge 1 (degraded), got %v", m.GetGauge().GetValue())
				}
			}
		}
	}
}

func TestPrometheusObserver_MultipleInstances(t *testing.T) {
	// Creating multiple instances should work (each has its own registry)
	observer1 := NewPrometheusObserver()
	observer2 := NewPrometheusObserver()

	observer1.RecordDenial("db", "query")
	observer2.RecordDenial("db", "insert")

	mf1, err := observer1.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	mf2, err := observer2.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	if len(mf1) == 0 {
		t.Error("observer1 should have metrics")
	}
	if len(mf2) == 0 {
		t.Error("observer2 should have metrics")
	}
}

func TestNoOpObserver_AllMethods(t *testing.T) {
	observer := NewNoOpObserver()

	// All methods should not panic and should be no-ops
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("NoOpObserver method panicked: %v", r)
		}
	}()

	observer.RecordAttempt("db", "query", "success", "")
	observer.RecordInvocation("db", "query", "success", 1, time.Millisecond)
	observer.RecordDenial("db", "query")
	observer.RecordCircuitTransition("db", "closed", "open")
	observer.RecordCircuitState("db", "open")
	observer.RecordHealthStatus("db", "healthy")
}

// Helper function to extract labels from a metric
func getLabels(m *dto.Metric) map[string]string {
	labels := make(map[string]string)
	for _, label := range m.GetLabel() {
		labels[label.GetName()] = label.GetValue()
	}
	return labels
}
