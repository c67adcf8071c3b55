// Package http serves the operational surface of the resilience core: the
// per-component health report, liveness and readiness probes, and the
// Prometheus metrics endpoint.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
)

// HealthResponse is the JSON document served on GET /health.
type HealthResponse struct {
	Status     health.Status                     `json:"status"`
	Timestamp  string                            `json:"timestamp"` // ISO 8601 format
	Version    string                            `json:"version,omitempty"`
	Components map[string]health.ComponentHealth `json:"components"`
	Checks     map[string]CheckStatus            `json:"checks,omitempty"`
}

// CheckStatus reports the outcome of a single extra checker.
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Checker is an active probe folded into the health report. Use it for
// dependencies with no call traffic to learn from, such as an idle database
// connection that should still answer pings.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves the component health report derived from the
// resilience registry. The response is 200 while the worst component is
// HEALTHY or DEGRADED and 503 once anything is UNHEALTHY or an extra
// checker fails.
type HealthHandler struct {
	Registry *resilience.Registry

	// Version is echoed in the response for deploy correlation.
	Version string

	// Checkers are optional active probes run on every request.
	Checkers []Checker

	// Timeout bounds the checker fan-out. Default: 5s
	Timeout time.Duration

	// Logger reports encode failures. Default: slog.Default()
	Logger *slog.Logger
}

// ServeHTTP renders the current health report.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		http.Error(w, "health registry not configured", http.StatusServiceUnavailable)
		return
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	response := HealthResponse{
		Status:     h.Registry.Health().Overall(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    h.Version,
		Components: h.Registry.Snapshot(),
	}

	if len(h.Checkers) > 0 {
		checks, failed := h.runCheckers(ctx)
		response.Checks = checks
		if failed {
			response.Status = health.StatusUnhealthy
		}
	}

	statusCode := http.StatusOK
	if response.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger().Error("failed to encode health response", slog.Any("error", err))
	}
}

// runCheckers fans the probes out concurrently and waits for all of them, so
// one slow dependency cannot eat the whole budget serially.
func (h *HealthHandler) runCheckers(ctx context.Context) (map[string]CheckStatus, bool) {
	results := make([]CheckStatus, len(h.Checkers))

	var g errgroup.Group
	for i, checker := range h.Checkers {
		g.Go(func() error {
			if err := checker.Check(ctx); err != nil {
				results[i] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			} else {
				results[i] = CheckStatus{Status: "healthy"}
			}
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]CheckStatus, len(results))
	failed := false
	for i, checker := range h.Checkers {
		checks[checker.Name] = results[i]
		if results[i].Status != "healthy" {
			failed = true
		}
	}
	return checks, failed
}

func (h *HealthHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
