package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies the instrumentation scope for HTTP server spans.
const tracerName = "jobsentinel/http"

// tracer is the shared tracer for the HTTP surface.
var tracer = otel.Tracer(tracerName)

// GetTracer returns the tracer used by the HTTP middleware. Handlers that
// want child spans under the request span should create them through it.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "health.report")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}
