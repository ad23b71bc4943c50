// Package server orchestrates the weather-mcp components.
//
// # Overview
//
// Server owns everything that outlives a single request: the MCP session
// registry, the location cache and optional SQLite store, the metrics
// registry, and the listeners.
//
// # HTTP Routes
//
//	/mcp              MCP Streamable HTTP endpoint (POST, GET, DELETE)
//	/widget/weather   weather widget HTML fragment
//	/health           liveness, always "OK"
//	/health/ready     "ready (N sessions)", 503 once shutdown begins;
//	                  ?verbose=1 lists session ids and created times as JSON
//	/metrics          Prometheus exposition when metrics.enabled
//
// All routes sit behind CORS middleware that exposes Mcp-Session-Id.
//
// # Listeners
//
// HTTP listens on server.http_addr. When server.grpc_addr is set, a gRPC
// server exposes grpc.health.v1. With tailscale.enabled both move onto a
// tsnet node (HTTP on :80, gRPC on :50051). If server.public_url is left at
// its default, widget links switch to the node's tailnet name.
//
// # Shutdown
//
// Shutdown closes MCP sessions before stopping the HTTP server, since open
// GET streams would otherwise hold their connections until the deadline.
package server
