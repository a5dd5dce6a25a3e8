package grpchealth

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server exposes the standard gRPC health service next to a service's HTTP
// API so orchestrators can probe it with grpc_health_probe.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	service    string
}

func New(service string) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(gs)

	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{grpcServer: gs, health: hs, service: service}
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.service, st)
	s.health.SetServingStatus("", st)
}

// Serve blocks until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis, log)
}

func (s *Server) ServeListener(ctx context.Context, lis net.Listener, log zerolog.Logger) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
