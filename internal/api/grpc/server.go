// Package grpcapi exposes the speech session's health over gRPC.
package grpcapi

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"zoom-transcript-service/internal/app"
	"zoom-transcript-service/internal/observability"
	"zoom-transcript-service/internal/observability/logging"
	"zoom-transcript-service/internal/service/speech"
)

// ServiceName is the health service name that tracks the speech session.
// The empty name reports process health.
const ServiceName = "zoom.transcript.SpeechSession"

// Server wraps the gRPC server and its health registry.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	unsub  func()
}

// NewServer builds a gRPC server whose SpeechSession health follows the
// session state: SERVING while the session intends to listen, NOT_SERVING
// once it is idle.
func NewServer(application *app.Application) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(application.Metrics)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(application.Metrics)),
	)

	// Register gRPC health check service
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, statusFor(application.Session.State()))

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	logger := logging.WithComponent("grpc")
	unsub := application.Session.OnStateChange(func(c speech.StateChange) {
		status := statusFor(c.To)
		hs.SetServingStatus(ServiceName, status)
		logger.Debug().Str("state", c.To.String()).Str("status", status.String()).Msg("Session health updated")
	})

	return &Server{grpc: g, health: hs, unsub: unsub}
}

func statusFor(s speech.State) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s == speech.StateIdle {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.unsub()
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
