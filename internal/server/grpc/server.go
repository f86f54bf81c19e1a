package grpcserver

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/robindai518/libiec61850/internal/runtime"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const healthPoll = 5 * time.Second

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	log    logpkg.Logger
	grpc   *grpc.Server
	health *health.Server
}

// New constructs a gRPC server and registers services.
func New(rt *runtime.Runtime, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	s := &Server{
		rt:     rt,
		log:    logger.WithComponent("grpc"),
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.grpc.RegisterService(&logServiceDesc, &logService{rt: rt})
	reflection.Register(s.grpc)
	return s
}

// UpdateHealth sets the serving status of the server and of the log service
// from the runtime health check.
func (s *Server) UpdateHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.rt.CheckHealth(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(logServiceName, status)
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	s.UpdateHealth(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(l) }()
	t := time.NewTicker(healthPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			return nil
		case err := <-errCh:
			return err
		case <-t.C:
			s.UpdateHealth(ctx)
		}
	}
}

// Serve accepts connections on l until the server is closed.
func (s *Server) Serve(l net.Listener) error {
	return s.grpc.Serve(l)
}

// Close stops the server; GracefulStop also closes its listeners.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}
