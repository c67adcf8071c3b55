package health

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/circuitbreaker"
)

// stubClock returns a fixed instant.
type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time {
	return c.now
}

func record(m *Monitor, component string, successes, failures int) {
	for i := 0; i < successes; i++ {
		m.Record(component, nil)
	}
	for i := 0; i < failures; i++ {
		m.Record(component, errors.New("connection reset"))
	}
}

func TestMonitor_UnknownComponent(t *testing.T) {
	m := New(DefaultConfig())

	snap := m.Status("scraper.greenhouse")
	if snap.Status != StatusHealthy {
		t.Errorf("expected healthy for untracked component, got %v", snap.Status)
	}
	if snap.WindowCount != 0 || snap.TotalCalls != 0 {
		t.Errorf("expected zeroed counters, got %+v", snap)
	}
}

func TestMonitor_HealthyAtLowFailureRate(t *testing.T) {
	m := New(DefaultConfig())
	record(m, "db", 9, 1)

	snap := m.Status("db")
	if snap.Status != StatusHealthy {
		t.Errorf("expected healthy at 0.1 failure rate, got %v", snap.Status)
	}
	if snap.FailureRate != 0.1 {
		t.Errorf("expected failure rate 0.1, got %v", snap.FailureRate)
	}
}

func TestMonitor_DegradedAtElevatedFailureRate(t *testing.T) {
	m := New(DefaultConfig())
	record(m, "scraper.lever", 8, 2)

	snap := m.Status("scraper.lever")
	if snap.Status != StatusDegraded {
		t.Errorf("expected degraded at 0.2 failure rate, got %v", snap.Status)
	}
	if snap.FailureRate != 0.2 {
		t.Errorf("expected failure rate 0.2, got %v", snap.FailureRate)
	}
	if snap.WindowCount != 10 {
		t.Errorf("expected window count 10, got %d", snap.WindowCount)
	}
}

func TestMonitor_UnhealthyAtHighFailureRate(t *testing.T) {
	m := New(DefaultConfig())
	record(m, "scoring-api", 5, 5)

	snap := m.Status("scoring-api")
	if snap.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy at 0.5 failure rate, got %v", snap.Status)
	}
}

func TestMonitor_WindowEvictsOldOutcomes(t *testing.T) {
	m := New(Config{WindowSize: 10})

	record(m, "db", 0, 10)
	if got := m.Status("db").Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy with full failure window, got %v", got)
	}

	// Nine successes push all but one failure out of the window.
	record(m, "db", 9, 0)
	snap := m.Status("db")
	if snap.FailureRate != 0.1 {
		t.Errorf("expected failure rate 0.1 after eviction, got %v", snap.FailureRate)
	}
	if snap.Status != StatusHealthy {
		t.Errorf("expected healthy after recovery, got %v", snap.Status)
	}
}

func TestMonitor_Streaks(t *testing.T) {
	m := New(DefaultConfig())

	record(m, "notifier", 0, 3)
	snap := m.Status("notifier")
	if snap.ConsecutiveFailures != 3 || snap.ConsecutiveSuccesses != 0 {
		t.Errorf("expected 3 consecutive failures, got %+v", snap)
	}

	record(m, "notifier", 2, 0)
	snap = m.Status("notifier")
	if snap.ConsecutiveFailures != 0 || snap.ConsecutiveSuccesses != 2 {
		t.Errorf("expected failure streak reset by success, got %+v", snap)
	}
	if snap.TotalCalls != 5 || snap.TotalFailures != 3 {
		t.Errorf("expected totals preserved, got %+v", snap)
	}
}

func TestMonitor_LastOutcomeDetails(t *testing.T) {
	clock := &stubClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := New(Config{Clock: clock})

	m.Record("db", errors.New("dial tcp: connection refused"))
	clock.now = clock.now.Add(time.Minute)
	m.Record("db", nil)

	snap := m.Status("db")
	if snap.LastError != "dial tcp: connection refused" {
		t.Errorf("expected last error retained, got %q", snap.LastError)
	}
	if !snap.LastFailureAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected last failure time %v", snap.LastFailureAt)
	}
	if !snap.LastSuccessAt.Equal(time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)) {
		t.Errorf("unexpected last success time %v", snap.LastSuccessAt)
	}
}

func TestMonitor_OpenCircuitForcesUnhealthy(t *testing.T) {
	m := New(DefaultConfig())
	record(m, "scoring-api", 10, 0)
	m.BindCircuit("scoring-api", func() circuitbreaker.State { return circuitbreaker.StateOpen })

	snap := m.Status("scoring-api")
	if snap.Status != StatusUnhealthy {
		t.Errorf("expected open circuit to force unhealthy, got %v", snap.Status)
	}
	if snap.Circuit != "open" {
		t.Errorf("expected circuit state open, got %q", snap.Circuit)
	}
}

func TestMonitor_HalfOpenCircuitDegrades(t *testing.T) {
	m := New(DefaultConfig())
	record(m, "db", 10, 0)
	m.BindCircuit("db", func() circuitbreaker.State { return circuitbreaker.StateHalfOpen })

	if got := m.Status("db").Status; got != StatusDegraded {
		t.Errorf("expected half-open circuit to degrade, got %v", got)
	}
}

func TestMonitor_BoundCircuitWithoutOutcomes(t *testing.T) {
	m := New(DefaultConfig())
	m.BindCircuit("scraper.greenhouse", func() circuitbreaker.State { return circuitbreaker.StateClosed })

	report := m.Report()
	snap, ok := report["scraper.greenhouse"]
	if !ok {
		t.Fatal("expected bound component in report")
	}
	if snap.Status != StatusHealthy {
		t.Errorf("expected healthy, got %v", snap.Status)
	}
	if snap.Circuit != "closed" {
		t.Errorf("expected circuit state closed, got %q", snap.Circuit)
	}
}

func TestMonitor_Report(t *testing.T) {
	m := New(DefaultConfig())
	record(m, "db", 10, 0)
	record(m, "scoring-api", 5, 5)

	report := m.Report()
	if len(report) != 2 {
		t.Fatalf("expected 2 components, got %d", len(report))
	}
	if report["db"].Status != StatusHealthy {
		t.Errorf("expected db healthy, got %v", report["db"].Status)
	}
	if report["scoring-api"].Status != StatusUnhealthy {
		t.Errorf("expected scoring-api unhealthy, got %v", report["scoring-api"].Status)
	}
}

func TestMonitor_Overall(t *testing.T) {
	m := New(DefaultConfig())

	if m.Overall() != StatusHealthy {
		t.Errorf("expected empty monitor healthy, got %v", m.Overall())
	}

	record(m, "db", 10, 0)
	if m.Overall() != StatusHealthy {
		t.Errorf("expected healthy, got %v", m.Overall())
	}

	record(m, "scraper.lever", 8, 2)
	if m.Overall() != StatusDegraded {
		t.Errorf("expected worst status degraded, got %v", m.Overall())
	}

	m.BindCircuit("notifier", func() circuitbreaker.State { return circuitbreaker.StateOpen })
	if m.Overall() != StatusUnhealthy {
		t.Errorf("expected worst status unhealthy, got %v", m.Overall())
	}
}

func TestMonitor_ConcurrentRecord(t *testing.T) {
	m := New(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				m.Record("db", nil)
			} else {
				m.Record("db", errors.New("timeout"))
			}
		}(i)
	}
	wg.Wait()

	snap := m.Status("db")
	if snap.TotalCalls != 100 {
		t.Errorf("expected 100 recorded calls, got %d", snap.TotalCalls)
	}
	if snap.TotalFailures != 50 {
		t.Errorf("expected 50 recorded failures, got %d", snap.TotalFailures)
	}
}

func TestNew_ThresholdOrdering(t *testing.T) {
	m := New(Config{DegradedThreshold: 0.6, UnhealthyThreshold: 0.3})
	record(m, "db", 5, 5)

	// The unhealthy threshold is lifted to the degraded threshold, so a
	// 0.5 rate stays below both.
	if got := m.Status("db").Status; got != StatusHealthy {
		t.Errorf("expected healthy with reordered thresholds, got %v", got)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatus_JSON(t *testing.T) {
	data, err := json.Marshal(StatusDegraded)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"degraded"` {
		t.Errorf("expected quoted string form, got %s", data)
	}

	var s Status
	if err := json.Unmarshal([]byte(`"unhealthy"`), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %v", s)
	}

	if err := json.Unmarshal([]byte(`"broken"`), &s); err == nil {
		t.Error("expected error for unknown status string")
	}
}
