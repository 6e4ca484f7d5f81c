package monitor

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/banshee-data/depth-servo/internal/monitoring"
	"github.com/banshee-data/depth-servo/internal/servo"
)

// ControlService is the health service name reported for the control loop.
const ControlService = "depthservo.Control"

// HealthService publishes the control loop state over the standard gRPC
// health protocol: SERVING while armed, NOT_SERVING once stopped.
type HealthService struct {
	health *health.Server

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewHealthService returns a health service reporting NOT_SERVING until
// the scheduler arms.
func NewHealthService() *HealthService {
	h := &HealthService{health: health.NewServer()}
	h.health.SetServingStatus(ControlService, healthpb.HealthCheckResponse_NOT_SERVING)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return h
}

// ObserveState is a scheduler state observer.
func (h *HealthService) ObserveState(s servo.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s == servo.Armed {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(ControlService, st)
}

// Check answers a health query for service directly.
func (h *HealthService) Check(service string) (*healthpb.HealthCheckResponse, error) {
	return h.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
}

// CheckJSON renders the control service status as protobuf JSON.
func (h *HealthService) CheckJSON() ([]byte, error) {
	resp, err := h.Check(ControlService)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(resp)
}

// Start serves the health service on addr.
func (h *HealthService) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, h.health)

	h.mu.Lock()
	h.server, h.listener = srv, lis
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		monitoring.Opsf("gRPC health service listening on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil {
			monitoring.Opsf("gRPC health server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (h *HealthService) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop marks every service NOT_SERVING and stops the server.
func (h *HealthService) Stop() {
	h.health.Shutdown()
	h.mu.Lock()
	srv := h.server
	h.mu.Unlock()
	if srv != nil {
		srv.GracefulStop()
	}
	h.wg.Wait()
}
