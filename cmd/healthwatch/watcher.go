package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	hhttp "github.com/cboyd0319/JobSentinel-sub005/internal/handler/http"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
)

// watcher remembers the last reported status of every component so a poll
// only logs what changed since the previous one.
type watcher struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	overall health.Status
	last    map[string]health.Status
}

func newWatcher(url string, timeout time.Duration, logger *slog.Logger) *watcher {
	return &watcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		last:   make(map[string]health.Status),
	}
}

// poll fetches one report and logs the transitions it finds. Fetch failures
// are logged and swallowed so the schedule keeps running.
func (w *watcher) poll() {
	report, err := w.fetch()
	if err != nil {
		w.logger.Error("health poll failed",
			slog.String("url", w.url),
			slog.Any("error", err))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		w.logStatus(report.Status, "watching health endpoint",
			slog.String("overall", report.Status.String()),
			slog.Int("components", len(report.Components)))
	} else if report.Status != w.overall {
		w.logStatus(report.Status, "overall status changed",
			slog.String("from", w.overall.String()),
			slog.String("to", report.Status.String()))
	}
	w.started = true
	w.overall = report.Status

	current := make(map[string]health.Status, len(report.Components))
	for _, name := range slices.Sorted(maps.Keys(report.Components)) {
		component := report.Components[name]
		current[name] = component.Status

		previous, seen := w.last[name]
		switch {
		case !seen:
			w.logStatus(component.Status, "component appeared",
				slog.String("component", name),
				slog.String("status", component.Status.String()))
		case component.Status != previous:
			args := []any{
				slog.String("component", name),
				slog.String("from", previous.String()),
				slog.String("to", component.Status.String()),
			}
			if component.LastError != "" {
				args = append(args, slog.String("last_error", component.LastError))
			}
			w.logStatus(component.Status, "component status changed", args...)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(w.last)) {
		if _, ok := current[name]; !ok {
			w.logger.Info("component no longer reported", slog.String("component", name))
		}
	}
	w.last = current
}

// fetch accepts 503 alongside 200: an unhealthy daemon still serves a full
// report, and the report is what we are here for.
func (w *watcher) fetch() (*hhttp.HealthResponse, error) {
	resp, err := w.client.Get(w.url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var report hhttp.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode health report: %w", err)
	}
	return &report, nil
}

// logStatus logs at a level matching the severity of the status.
func (w *watcher) logStatus(status health.Status, msg string, args ...any) {
	switch status {
	case health.StatusUnhealthy:
		w.logger.Error(msg, args...)
	case health.StatusDegraded:
		w.logger.Warn(msg, args...)
	default:
		w.logger.Info(msg, args...)
	}
}
