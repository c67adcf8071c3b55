package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cboyd0319/JobSentinel-sub005/internal/observability/metrics"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
)

func TestNewMux_Liveness(t *testing.T) {
	mux := NewMux(&HealthHandler{Registry: resilience.New()}, nil, nil)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health/live")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alive", string(body))
}

func TestNewMux_Readiness(t *testing.T) {
	var ready atomic.Bool
	mux := NewMux(&HealthHandler{Registry: resilience.New()}, nil, ready.Load)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ready.Store(true)

	resp, err = http.Get(server.URL + "/health/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewMux_Metrics(t *testing.T) {
	observer := metrics.NewPrometheusObserver()
	observer.RecordCircuitState("database", "open")

	mux := NewMux(&HealthHandler{Registry: resilience.New()}, observer.Registry(), nil)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "resilience_circuit_state")
}

func TestNewMux_HealthReport(t *testing.T) {
	reg := resilience.New()
	recordCalls(t, reg, "scraper.boards", 3, 0)

	mux := NewMux(&HealthHandler{Registry: reg}, nil, nil)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_StartAndGracefulShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("localhost:19181", &HealthHandler{Registry: resilience.New()}, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	// Wait for the listener to come up.
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://localhost:19181/health/live")
	require.NoError(t, err, "server not running")
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Requests carry a trace ID from the tracing middleware.
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))

	resp, err = http.Get("http://localhost:19181/health/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "server starts not ready")

	srv.SetReady(true)

	resp, err = http.Get("http://localhost:19181/health/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errChan:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown timeout")
	}

	_, err = http.Get("http://localhost:19181/health/live")
	assert.Error(t, err, "expected connection error after shutdown")
}

func TestServer_Ready(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(":19182", &HealthHandler{Registry: resilience.New()}, nil, logger)

	assert.False(t, srv.Ready(), "server must start not ready")

	srv.SetReady(true)
	assert.True(t, srv.Ready())

	srv.SetReady(false)
	assert.False(t, srv.Ready())
}
