// Package config handles configuration loading for weather-mcp.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Every field has a default, so the server runs with no file at all.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WEATHER_MCP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/weather-mcp/config.yaml
//  3. ~/.config/weather-mcp/config.yaml
//
// A path ending in .toml is decoded as TOML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Durations accept Go's time.ParseDuration units plus d and w:
//
//	weather:
//	  cache_ttl: "1h"
//	database:
//	  store_ttl: "30d"
//
// # Usage
//
//	cfg, err := config.LoadDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Load from specific path:
//
//	cfg, err := config.Load("/etc/weather-mcp/config.toml")
package config
