package api

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SimulatorService is the service name reported by the health endpoint.
const SimulatorService = "barsim.v1.Simulator"

// HealthService reports simulator liveness over the standard gRPC health
// protocol.
type HealthService struct {
	srv *health.Server
}

// NewGRPCServer creates a gRPC server with the health service registered
// and marked SERVING.
func NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *HealthService) {
	gs := grpc.NewServer(opts...)
	hs := &HealthService{srv: health.NewServer()}
	healthpb.RegisterHealthServer(gs, hs.srv)
	hs.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.srv.SetServingStatus(SimulatorService, healthpb.HealthCheckResponse_SERVING)
	return gs, hs
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthService) Shutdown() {
	h.srv.Shutdown()
}
