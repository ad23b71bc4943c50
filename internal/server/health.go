// ABOUTME: Liveness and readiness endpoints over HTTP and gRPC
// ABOUTME: Readiness reports the active MCP session count and fails while draining

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/weather-mcp/internal/session"
)

// HealthService is the gRPC health service name reported alongside the overall status.
const HealthService = "weather_mcp.v1.Widget"

func newHealthServer() (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	return grpcServer, healthServer
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ReadyReport is the verbose readiness body served by /health/ready?verbose=1.
type ReadyReport struct {
	Status   string         `json:"status"`
	Sessions []session.Info `json:"sessions"`
}

// handleReady returns 200 with the active session count, or 503 once shutdown
// begins. With a verbose query parameter it lists the sessions as JSON.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	if s.draining.Load() {
		status, code = "shutting down", http.StatusServiceUnavailable
	}

	if r.URL.Query().Get("verbose") != "" {
		report := ReadyReport{Status: status, Sessions: s.Sessions()}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
		return
	}

	w.WriteHeader(code)
	if code != http.StatusOK {
		_, _ = w.Write([]byte(status))
		return
	}
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", s.registry.Len())
}
