package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// endpointLabel collapses unknown paths into a single label value so stray
// scans cannot grow the metric cardinality.
func endpointLabel(path string) string {
	switch path {
	case "/health", "/health/live", "/health/ready", "/metrics":
		return path
	}
	return "other"
}

// Metrics returns middleware recording request counts, latencies, and
// in-flight requests on the given registerer. Buckets run from 5ms to 10s,
// wide enough to cover a /health request fanning out to slow checkers.
func Metrics(reg prometheus.Registerer) func(http.Handler) http.Handler {
	requests := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	duration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)
	inFlight := promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inFlight.Inc()
			defer inFlight.Dec()

			wrapped := record(w)
			start := time.Now()
			next.ServeHTTP(wrapped, r)

			path := endpointLabel(r.URL.Path)
			status := strconv.Itoa(wrapped.status)
			requests.WithLabelValues(r.Method, path, status).Inc()
			duration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}
