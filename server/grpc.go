package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// server-wide ("") status.
const ServiceName = "objclassify.Classifier"

// HealthServer exposes the classifier's load state through the standard
// gRPC health protocol.
type HealthServer struct {
	*health.Server
	clf Classifier
}

func NewHealthServer(clf Classifier) *HealthServer {
	h := &HealthServer{Server: health.NewServer(), clf: clf}
	h.Refresh()
	return h
}

// Refresh publishes SERVING once the classifier is loaded and NOT_SERVING
// otherwise.
func (h *HealthServer) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.clf.IsLoaded() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus("", status)
	h.SetServingStatus(ServiceName, status)
}

// NewGRPCServer returns a gRPC server with h registered.
func NewGRPCServer(h *HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.Server)
	return s
}
