// Package grpcserver exposes the daemon's health over gRPC.
package grpcserver

import (
	"net"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reporting sync status.
const ServiceName = "notesync.v1.Sync"

// Server is a gRPC server carrying the standard health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *zap.Logger
}

// New builds the server with logging and recovery interceptors.
// With a non-nil reg, per-method request metrics are registered on it.
// Both the overall and the sync service status start as NOT_SERVING.
func New(log *zap.Logger, reflect bool, reg prometheus.Registerer, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	unary := []grpc.UnaryServerInterceptor{RecoverUnary(log), LoggingUnary(log)}
	stream := []grpc.StreamServerInterceptor{RecoverStream(log), LoggingStream(log)}

	var sm *grpcprom.ServerMetrics
	if reg != nil {
		sm = grpcprom.NewServerMetrics()
		reg.MustRegister(sm)
		unary = append([]grpc.UnaryServerInterceptor{sm.UnaryServerInterceptor()}, unary...)
		stream = append([]grpc.StreamServerInterceptor{sm.StreamServerInterceptor()}, stream...)
	}
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}, opts...)
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if reflect {
		reflection.Register(s)
	}
	if sm != nil {
		sm.InitializeMetrics(s)
	}

	srv := &Server{grpc: s, health: hs, log: log}
	srv.SetServing(false)
	return srv
}

// SetServing flips the status of ServiceName and the overall server status.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Shutdown stops gracefully, falling back to a hard stop after timeout.
func (s *Server) Shutdown(timeout time.Duration) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn("graceful stop timed out, forcing")
		s.grpc.Stop()
	}
}
