// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON, text and colorized development output formats
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "github.com/cboyd0319/JobSentinel-sub005/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started", slog.String("version", "1.0"))
//	}
//
//	func poll(ctx context.Context) {
//	    logger := logging.FromContext(ctx)
//	    logger.Info("polling component health")
//	}
package logging
