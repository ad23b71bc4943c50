// ABOUTME: Starter configuration written by the init command
// ABOUTME: Refuses to overwrite an existing file

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrConfigExists is returned by WriteSample when the target file is already present.
var ErrConfigExists = errors.New("config file already exists")

// Sample is a commented starter configuration. Every value shown is the default.
const Sample = `# weather-mcp configuration

server:
  http_addr: ":3000"
  # grpc_addr: ":50051"   # gRPC health service, off when empty
  public_url: "http://localhost:3000"
  read_header_timeout: "10s"
  shutdown_timeout: "10s"

cors:
  allowed_origins: ["*"]

weather:
  geocoding_url: "https://geocoding-api.open-meteo.com/v1/search"
  forecast_url: "https://api.open-meteo.com/v1/forecast"
  timezone: "America/New_York"
  temperature_unit: "fahrenheit"
  wind_speed_unit: "mph"
  precipitation_unit: "inch"
  request_timeout: "10s"
  cache_ttl: "1h"
  cache_size: 1000

database:
  # path: "${HOME}/.local/share/weather-mcp/locations.db"
  store_ttl: "30d"

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text, json

metrics:
  enabled: false
  path: "/metrics"

tailscale:
  enabled: false
  hostname: "weather-mcp"
  auth_key: "${TS_AUTHKEY}"
  ephemeral: false
`

// WriteSample writes Sample to path, creating parent directories.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, ErrConfigExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Sample), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
