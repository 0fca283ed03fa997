package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// shutdownGrace bounds how long in-flight calls may drain on shutdown.
const shutdownGrace = 5 * time.Second

// Server hosts the transaction service and the standard health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	port   int
	log    *slog.Logger
}

// NewServer creates a gRPC server for svc listening on port.
func NewServer(svc TransactionServiceServer, port int, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unaryObserver, unaryRecovery),
		grpc.ChainStreamInterceptor(streamObserver, streamRecovery),
	}, opts...)

	gs := grpc.NewServer(opts...)
	RegisterTransactionServiceServer(gs, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(gs)

	return &Server{
		grpc:   gs,
		health: hs,
		port:   port,
		log:    slog.Default().With("component", "grpc"),
	}
}

// Start listens on the configured port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.log.Info("Starting gRPC server", "address", lis.Addr().String())
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then drains in-flight calls.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info("Stopping gRPC server")
		s.health.Shutdown()

		drained := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(shutdownGrace):
			// Monitor streams can outlive the grace period.
			s.grpc.Stop()
		}
	}()

	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	<-stopped
	return nil
}

// Stop terminates every connection immediately.
func (s *Server) Stop() {
	s.grpc.Stop()
}
