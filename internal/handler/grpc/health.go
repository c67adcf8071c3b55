// Package grpc exposes the resilience health monitor over the standard
// grpc.health.v1 protocol so orchestrators and gRPC-native tooling can probe
// the same state the HTTP health endpoint reports.
package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience"
	"github.com/cboyd0319/JobSentinel-sub005/internal/resilience/health"
)

// defaultPollInterval is how often Watch re-evaluates component status.
const defaultPollInterval = 5 * time.Second

// HealthServer serves grpc.health.v1.Health over the resilience registry.
//
// The empty service name reports the overall status across all components;
// any other service name reports that single component. Degraded components
// still report SERVING: they are impaired but answering, and pulling them out
// of rotation would turn a partial outage into a full one.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	registry *resilience.Registry
	interval time.Duration
	logger   *slog.Logger
}

// NewHealthServer creates a health service backed by the registry's monitor.
// A non-positive pollInterval defaults to 5 seconds; a nil logger defaults to
// slog.Default().
func NewHealthServer(registry *resilience.Registry, pollInterval time.Duration, logger *slog.Logger) *HealthServer {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthServer{
		registry: registry,
		interval: pollInterval,
		logger:   logger,
	}
}

// Check reports the current status of one service. Asking for a component the
// registry has never seen is a NotFound error, as the protocol requires.
func (s *HealthServer) Check(_ context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	serving, known := s.serving(req.GetService())
	if !known {
		return nil, status.Errorf(codes.NotFound, "unknown component %q", req.GetService())
	}
	return &grpc_health_v1.HealthCheckResponse{Status: serving}, nil
}

// List reports every tracked component, plus the overall status under the
// empty service name.
func (s *HealthServer) List(_ context.Context, _ *grpc_health_v1.HealthListRequest) (*grpc_health_v1.HealthListResponse, error) {
	report := s.registry.Snapshot()

	statuses := make(map[string]*grpc_health_v1.HealthCheckResponse, len(report)+1)
	statuses[""] = &grpc_health_v1.HealthCheckResponse{Status: toServing(s.registry.Health().Overall())}
	for name, component := range report {
		statuses[name] = &grpc_health_v1.HealthCheckResponse{Status: toServing(component.Status)}
	}

	return &grpc_health_v1.HealthListResponse{Statuses: statuses}, nil
}

// Watch streams the status of one service: the current value immediately,
// then a new message whenever a poll observes a change, until the client goes
// away. An unknown component starts as SERVICE_UNKNOWN and keeps watching so
// a component that comes online later is reported without reconnecting.
func (s *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	service := req.GetService()

	last, _ := s.serving(service)
	if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: last}); err != nil {
		return status.Error(codes.Canceled, "stream closed")
	}

	s.logger.Debug("health watch started", slog.String("service", service))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Context().Done():
			s.logger.Debug("health watch ended", slog.String("service", service))
			return status.FromContextError(stream.Context().Err()).Err()
		case <-ticker.C:
			current, _ := s.serving(service)
			if current == last {
				continue
			}
			last = current
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return status.Error(codes.Canceled, "stream closed")
			}
		}
	}
}

// serving resolves a service name to its protocol status. The second return
// reports whether the component is tracked; the empty name is always known.
func (s *HealthServer) serving(service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, bool) {
	monitor := s.registry.Health()
	if service == "" {
		return toServing(monitor.Overall()), true
	}
	if _, ok := monitor.Report()[service]; !ok {
		return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN, false
	}
	return toServing(monitor.Status(service).Status), true
}

// toServing collapses the three-valued monitor status onto the protocol's
// serving bit.
func toServing(s health.Status) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s == health.StatusUnhealthy {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}
