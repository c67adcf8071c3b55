package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Server runs the health service on its own listener.
type Server struct {
	addr   string
	health *HealthServer
	logger *slog.Logger
	server *grpc.Server
}

// NewServer creates a gRPC server exposing the health service on addr.
func NewServer(addr string, health *HealthServer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	server := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(server, health)

	return &Server{
		addr:   addr,
		health: health,
		logger: logger,
		server: server,
	}
}

// Start listens on the configured address and serves until ctx is canceled.
// Shutdown drains in-flight RPCs but gives up after 5 seconds: Watch streams
// never end on their own, so an unbounded GracefulStop would hang forever.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("grpc health server starting", slog.String("addr", s.addr))
		if err := s.server.Serve(lis); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc health server shutting down")

		stopped := make(chan struct{})
		go func() {
			s.server.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			s.server.Stop()
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("grpc health server error: %w", err)
	}
}
