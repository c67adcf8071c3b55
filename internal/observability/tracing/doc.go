// Package tracing provides OpenTelemetry tracing for the resilience
// service's HTTP surface.
//
// The package exposes a named tracer shared by all HTTP handlers and a
// middleware that extracts W3C Trace Context from incoming requests,
// opens a server span per request, and echoes the trace ID back to the
// caller via the X-Trace-Id response header.
//
// Example usage:
//
//	mux := http.NewServeMux()
//	mux.Handle("/health", healthHandler)
//	srv := &http.Server{Handler: tracing.Middleware(mux)}
//
// Spans are exported through whatever TracerProvider the process has
// registered globally; the package itself performs no exporter setup.
package tracing
