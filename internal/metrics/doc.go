// Package metrics exposes Prometheus metrics for the server.
//
// A single Metrics value is the observer for the session registry, the MCP
// router, and the weather client and resolver, and wraps HTTP handlers with
// Instrument. All metrics are prefixed weather_mcp_.
package metrics
