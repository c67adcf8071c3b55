// Package observability provides production-grade observability infrastructure
// including structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// This package centralizes observability concerns to enable:
//   - Tracing protected invocations end to end
//   - Structured logging with context propagation
//   - Prometheus metrics for circuit, retry and health behavior
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Observer interface with Prometheus and no-op implementations
//   - tracing: OpenTelemetry tracing integration
//
// Example usage:
//
//	import (
//	    "github.com/cboyd0319/JobSentinel-sub005/internal/observability/logging"
//	    "github.com/cboyd0319/JobSentinel-sub005/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started")
//
//	    observer := metrics.NewPrometheusObserver()
//	    observer.RecordCircuitState("db", "closed")
//	}
package observability
