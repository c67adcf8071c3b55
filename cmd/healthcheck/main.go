// Command healthcheck probes the daemon's /health endpoint once and exits
// with a code fit for scripts and container health checks: 0 while every
// component is healthy or degraded, 1 when anything is unhealthy, 2 when the
// endpoint cannot be reached or parsed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"
	"strconv"
	"time"

	hhttp "github.com/cboyd0319/JobSentinel-sub005/internal/handler/http"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
)

const defaultHealthURL = "http://localhost:8080/health"

const (
	exitOK          = 0
	exitUnhealthy   = 1
	exitUnreachable = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	flags.SetOutput(stderr)
	urlFlag := flags.String("url", "", "health endpoint URL (default $HEALTH_URL or "+defaultHealthURL+")")
	timeoutFlag := flags.Duration("timeout", 5*time.Second, "request timeout")
	if err := flags.Parse(args); err != nil {
		return exitUnreachable
	}

	target := *urlFlag
	if target == "" {
		target = os.Getenv("HEALTH_URL")
	}
	if target == "" {
		target = defaultHealthURL
	}

	report, err := fetchReport(target, *timeoutFlag)
	if err != nil {
		fmt.Fprintf(stderr, "healthcheck: %v\n", err)
		return exitUnreachable
	}

	printReport(stdout, report)

	switch report.Status {
	case health.StatusUnhealthy:
		return exitUnhealthy
	case health.StatusDegraded:
		fmt.Fprintln(stderr, "healthcheck: service degraded")
		return exitOK
	default:
		return exitOK
	}
}

// fetchReport GETs the health endpoint and decodes the report. A 503 still
// carries a full report (that is how the daemon says "unhealthy"), so only
// other statuses are treated as errors.
func fetchReport(target string, timeout time.Duration) (*hhttp.HealthResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
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

func printReport(w io.Writer, report *hhttp.HealthResponse) {
	if report.Version != "" {
		fmt.Fprintf(w, "overall: %s (version %s)\n", report.Status, report.Version)
	} else {
		fmt.Fprintf(w, "overall: %s\n", report.Status)
	}

	for _, name := range slices.Sorted(maps.Keys(report.Components)) {
		component := report.Components[name]
		line := fmt.Sprintf("  %-28s %-10s failure_rate=%.2f", name, component.Status, component.FailureRate)
		if component.Circuit != "" && component.Circuit != "closed" {
			line += " circuit=" + component.Circuit
		}
		if component.LastError != "" {
			line += " last_error=" + strconv.Quote(component.LastError)
		}
		fmt.Fprintln(w, line)
	}

	if len(report.Checks) > 0 {
		fmt.Fprintln(w, "checks:")
		for _, name := range slices.Sorted(maps.Keys(report.Checks)) {
			check := report.Checks[name]
			if check.Message != "" {
				fmt.Fprintf(w, "  %-28s %s (%s)\n", name, check.Status, check.Message)
			} else {
				fmt.Fprintf(w, "  %-28s %s\n", name, check.Status)
			}
		}
	}
}
