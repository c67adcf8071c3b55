package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cboyd0319/JobSentinel-sub005/internal/handler/http/requestid"
	"github.com/cboyd0319/JobSentinel-sub005/internal/observability/tracing"
)

// NewMux wires the operational endpoints:
//   - GET /health: full component report (200 healthy/degraded, 503 unhealthy)
//   - GET /health/live: liveness probe, always 200
//   - GET /health/ready: readiness probe, 503 until ready reports true
//   - GET /metrics: Prometheus exposition for the given registry
//
// A nil ready func means always ready; a nil metrics registry falls back to
// the default Prometheus handler.
func NewMux(h *HealthHandler, metricsRegistry *prometheus.Registry, ready func() bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", h)

	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("alive"))
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if metricsRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

// Server hosts the operational endpoints with graceful shutdown. It starts
// as not ready; call SetReady(true) once startup completes.
//
// Example usage:
//
//	srv := NewServer(":8080", handler, observer.Registry(), logger)
//	go func() {
//	    if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
//	        logger.Error("health server failed", slog.Any("error", err))
//	    }
//	}()
//	srv.SetReady(true)
type Server struct {
	addr    string
	logger  *slog.Logger
	isReady *atomic.Bool
	handler http.Handler
	server  *http.Server
}

// NewServer builds a server around the health handler and metrics registry.
// Requests pass through request ID assignment, tracing, panic recovery,
// request logging, and (when a registry is given) request metrics.
func NewServer(addr string, h *HealthHandler, metricsRegistry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	isReady := &atomic.Bool{}
	s := &Server{
		addr:    addr,
		logger:  logger,
		isReady: isReady,
	}

	handler := http.Handler(NewMux(h, metricsRegistry, isReady.Load))
	if metricsRegistry != nil {
		handler = Metrics(metricsRegistry)(handler)
	}
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	handler = tracing.Middleware(handler)
	handler = requestid.Middleware(handler)
	s.handler = handler
	return s
}

// Start runs the server until ctx is cancelled or serving fails. It blocks,
// shuts down gracefully with a 5-second budget on cancellation, and returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("health server starting", slog.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("health server shutting down")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		s.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if err != http.ErrServerClosed {
			s.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady flips the /health/ready endpoint.
func (s *Server) SetReady(ready bool) {
	s.isReady.Store(ready)
	s.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

// Ready reports the current readiness state.
func (s *Server) Ready() bool {
	return s.isReady.Load()
}
