package grpcserver

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// WatchHealth keeps the health service in step with the runtime until ctx is
// done, for servers that are served on a caller-owned listener.
func (s *Server) WatchHealth(ctx context.Context, every time.Duration) {
	s.UpdateHealth(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case <-t.C:
			s.UpdateHealth(ctx)
		}
	}
}
