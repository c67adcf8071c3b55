package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/retry"
)

// recordCalls drives successes and failures for a component through the
// registry so the handler sees real monitor state.
func recordCalls(t *testing.T, reg *resilience.Registry, component string, successes, failures int) {
	t.Helper()

	oneShot := retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	ctx := context.Background()
	for i := 0; i < successes; i++ {
		err := reg.Do(ctx, component, func(context.Context) error { return nil },
			resilience.WithRetry(oneShot))
		require.NoError(t, err)
	}
	for i := 0; i < failures; i++ {
		err := reg.Do(ctx, component, func(context.Context) error { return errors.New("connection refused") },
			resilience.WithRetry(oneShot))
		require.Error(t, err)
	}
}

func getHealth(t *testing.T, h *HealthHandler) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	reg := resilience.New()
	recordCalls(t, reg, "scraper.boards", 5, 0)

	h := &HealthHandler{Registry: reg, Version: "1.4.0"}
	rr, body := getHealth(t, h)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, health.StatusHealthy, body.Status)
	assert.Equal(t, "1.4.0", body.Version)
	assert.NotEmpty(t, body.Timestamp)

	component, ok := body.Components["scraper.boards"]
	require.True(t, ok, "expected scraper.boards in report")
	assert.Equal(t, uint64(5), component.TotalCalls)
}

func TestHealthHandler_DegradedServes200(t *testing.T) {
	reg := resilience.New()
	recordCalls(t, reg, "scoring-api", 8, 2) // 0.2 failure rate over the window

	rr, body := getHealth(t, &HealthHandler{Registry: reg})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, health.StatusDegraded, body.Status)
}

func TestHealthHandler_Unhealthy503(t *testing.T) {
	reg := resilience.New()
	recordCalls(t, reg, "database", 0, 5)

	rr, body := getHealth(t, &HealthHandler{Registry: reg})

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, health.StatusUnhealthy, body.Status)
}

func TestHealthHandler_WorstComponentWins(t *testing.T) {
	reg := resilience.New()
	recordCalls(t, reg, "scraper.boards", 10, 0)
	recordCalls(t, reg, "notifier", 0, 5)

	rr, body := getHealth(t, &HealthHandler{Registry: reg})

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, health.StatusUnhealthy, body.Status)
	assert.Equal(t, health.StatusHealthy, body.Components["scraper.boards"].Status)
	assert.Equal(t, health.StatusUnhealthy, body.Components["notifier"].Status)
}

func TestHealthHandler_NoTrafficIsHealthy(t *testing.T) {
	rr, body := getHealth(t, &HealthHandler{Registry: resilience.New()})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, health.StatusHealthy, body.Status)
	assert.Empty(t, body.Components)
}

func TestHealthHandler_CheckersFoldedIntoReport(t *testing.T) {
	reg := resilience.New()
	recordCalls(t, reg, "scraper.boards", 5, 0)

	h := &HealthHandler{
		Registry: reg,
		Checkers: []Checker{
			{Name: "database", Check: func(context.Context) error { return nil }},
			{Name: "cache", Check: func(context.Context) error { return errors.New("dial tcp: connection refused") }},
		},
	}

	rr, body := getHealth(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, health.StatusUnhealthy, body.Status)

	require.Len(t, body.Checks, 2)
	assert.Equal(t, "healthy", body.Checks["database"].Status)
	assert.Equal(t, "unhealthy", body.Checks["cache"].Status)
	assert.Contains(t, body.Checks["cache"].Message, "connection refused")
}

func TestHealthHandler_CheckersAllPassing(t *testing.T) {
	h := &HealthHandler{
		Registry: resilience.New(),
		Checkers: []Checker{
			{Name: "database", Check: func(context.Context) error { return nil }},
		},
	}

	rr, body := getHealth(t, h)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", body.Checks["database"].Status)
}

func TestHealthHandler_CheckerSeesDeadline(t *testing.T) {
	h := &HealthHandler{
		Registry: resilience.New(),
		Timeout:  20 * time.Millisecond,
		Checkers: []Checker{
			{Name: "slow", Check: func(ctx context.Context) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(5 * time.Second):
					return nil
				}
			}},
		},
	}

	start := time.Now()
	rr, body := getHealth(t, h)

	assert.Less(t, time.Since(start), time.Second, "checker must be cut off by the timeout")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unhealthy", body.Checks["slow"].Status)
}

func TestHealthHandler_NoRegistry(t *testing.T) {
	rr := httptest.NewRecorder()
	h := &HealthHandler{}
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthHandler_ResponseRoundTrips(t *testing.T) {
	reg := resilience.New()
	recordCalls(t, reg, "scraper.boards", 3, 1)

	_, body := getHealth(t, &HealthHandler{Registry: reg})

	// The healthcheck CLI parses this document back; the status strings
	// must survive a round trip.
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	var reparsed HealthResponse
	require.NoError(t, json.Unmarshal(raw, &reparsed))
	assert.Equal(t, body.Status, reparsed.Status)
	assert.Equal(t, body.Components["scraper.boards"].FailureRate, reparsed.Components["scraper.boards"].FailureRate)
}
