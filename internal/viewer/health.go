package viewer

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/telemetry-gui/internal/monitoring"
)

// HealthService is the service name reported by the health endpoint.
const HealthService = "telemetry.viewer.Channel"

// HealthServer exposes channel readiness over the standard gRPC health
// protocol, for supervisors that poll rather than watch the marker file.
type HealthServer struct {
	addr     string
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewHealthServer creates a health endpoint that will listen on addr.
func NewHealthServer(addr string) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{addr: addr, health: h}
}

// Start binds the listener and begins serving in the background.
func (h *HealthServer) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen for health checks: %w", err)
	}
	h.listener = lis
	h.server = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(h.server, h.health)

	go func() {
		if err := h.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			monitoring.Logf("[Viewer] Health server error: %v", err)
		}
	}()
	monitoring.Logf("[Viewer] gRPC health endpoint listening on %s", lis.Addr())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (h *HealthServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// SetServing flips the reported status.
func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(HealthService, status)
}

// Stop shuts the endpoint down.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	if h.server != nil {
		h.server.GracefulStop()
	}
}
