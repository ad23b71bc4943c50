// ABOUTME: Configuration loading and parsing for weather-mcp
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config location.
const EnvConfigPath = "WEATHER_MCP_CONFIG"

// Config represents the complete weather-mcp configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
	Weather   WeatherConfig   `yaml:"weather" toml:"weather"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// GRPCAddr serves the gRPC health service when set.
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	// PublicURL is the externally reachable base URL; widget links are built from it.
	PublicURL string `yaml:"public_url" toml:"public_url"`

	ReadHeaderTimeout time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout   time.Duration `yaml:"-" toml:"-"`

	ReadHeaderTimeoutRaw string `yaml:"read_header_timeout" toml:"read_header_timeout"`
	ShutdownTimeoutRaw   string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// CORSConfig holds cross-origin settings for the HTTP endpoints
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// WeatherConfig holds upstream API and lookup cache configuration
type WeatherConfig struct {
	GeocodingURL      string `yaml:"geocoding_url" toml:"geocoding_url"`
	ForecastURL       string `yaml:"forecast_url" toml:"forecast_url"`
	Timezone          string `yaml:"timezone" toml:"timezone"`
	TemperatureUnit   string `yaml:"temperature_unit" toml:"temperature_unit"`
	WindSpeedUnit     string `yaml:"wind_speed_unit" toml:"wind_speed_unit"`
	PrecipitationUnit string `yaml:"precipitation_unit" toml:"precipitation_unit"`
	CacheSize         int    `yaml:"cache_size" toml:"cache_size"`

	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	CacheTTL       time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
	CacheTTLRaw       string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// DatabaseConfig holds the optional location store configuration.
// An empty path disables the store.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`

	// StoreTTL bounds how long a stored location is trusted; zero keeps rows forever.
	StoreTTL    time.Duration `yaml:"-" toml:"-"`
	StoreTTLRaw string        `yaml:"store_ttl" toml:"store_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// Defaults applied to any field left empty.
const (
	DefaultHTTPAddr          = ":3000"
	DefaultPublicURL         = "http://localhost:3000"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultGeocodingURL      = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL       = "https://api.open-meteo.com/v1/forecast"
	DefaultTimezone          = "America/New_York"
	DefaultTemperatureUnit   = "fahrenheit"
	DefaultWindSpeedUnit     = "mph"
	DefaultPrecipitationUnit = "inch"
	DefaultRequestTimeout    = 10 * time.Second
	DefaultCacheTTL          = time.Hour
	DefaultCacheSize         = 1000
	DefaultStoreTTL          = 30 * 24 * time.Hour
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultMetricsPath       = "/metrics"
	DefaultTailscaleHostname = "weather-mcp"
)

var (
	validLogLevels         = []string{"debug", "info", "warn", "error"}
	validLogFormats        = []string{"text", "json"}
	validTemperatureUnits  = []string{"fahrenheit", "celsius"}
	validWindSpeedUnits    = []string{"mph", "kmh", "ms", "kn"}
	validPrecipitationUnit = []string{"inch", "mm"}
	reservedPaths          = []string{"/mcp", "/widget/weather", "/health", "/health/ready"}
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML; anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values, and accept day and week units.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(expandEnvVars(string(data)), formatFor(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the file at DefaultPath. When no file exists there and the
// location was not set explicitly, the built-in defaults are returned.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && os.Getenv(EnvConfigPath) == "" {
		return Default(), nil
	}
	return nil, err
}

// Format is a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes already-expanded config text, then applies defaults and validates.
func Parse(text string, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(text, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config location: $WEATHER_MCP_CONFIG, then
// $XDG_CONFIG_HOME/weather-mcp/config.yaml, then ~/.config/weather-mcp/config.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "weather-mcp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "weather-mcp", "config.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.HTTPAddr, DefaultHTTPAddr)
	setDefault(&c.Server.PublicURL, DefaultPublicURL)
	setDefault(&c.Server.ReadHeaderTimeout, DefaultReadHeaderTimeout)
	setDefault(&c.Server.ShutdownTimeout, DefaultShutdownTimeout)

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}

	setDefault(&c.Weather.GeocodingURL, DefaultGeocodingURL)
	setDefault(&c.Weather.ForecastURL, DefaultForecastURL)
	setDefault(&c.Weather.Timezone, DefaultTimezone)
	setDefault(&c.Weather.TemperatureUnit, DefaultTemperatureUnit)
	setDefault(&c.Weather.WindSpeedUnit, DefaultWindSpeedUnit)
	setDefault(&c.Weather.PrecipitationUnit, DefaultPrecipitationUnit)
	setDefault(&c.Weather.RequestTimeout, DefaultRequestTimeout)
	setDefault(&c.Weather.CacheTTL, DefaultCacheTTL)
	setDefault(&c.Weather.CacheSize, DefaultCacheSize)

	if c.Database.StoreTTLRaw == "" {
		setDefault(&c.Database.StoreTTL, DefaultStoreTTL)
	}

	setDefault(&c.Logging.Level, DefaultLogLevel)
	setDefault(&c.Logging.Format, DefaultLogFormat)
	setDefault(&c.Metrics.Path, DefaultMetricsPath)
	setDefault(&c.Tailscale.Hostname, DefaultTailscaleHostname)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if err := validateHTTPURL("server.public_url", c.Server.PublicURL); err != nil {
		return err
	}
	if err := validateHTTPURL("weather.geocoding_url", c.Weather.GeocodingURL); err != nil {
		return err
	}
	if err := validateHTTPURL("weather.forecast_url", c.Weather.ForecastURL); err != nil {
		return err
	}

	if strings.TrimSpace(c.Weather.Timezone) == "" {
		return fmt.Errorf("weather.timezone is required")
	}
	if !slices.Contains(validTemperatureUnits, c.Weather.TemperatureUnit) {
		return fmt.Errorf("weather.temperature_unit must be one of %v", validTemperatureUnits)
	}
	if !slices.Contains(validWindSpeedUnits, c.Weather.WindSpeedUnit) {
		return fmt.Errorf("weather.wind_speed_unit must be one of %v", validWindSpeedUnits)
	}
	if !slices.Contains(validPrecipitationUnit, c.Weather.PrecipitationUnit) {
		return fmt.Errorf("weather.precipitation_unit must be one of %v", validPrecipitationUnit)
	}
	if c.Weather.CacheSize < 1 {
		return fmt.Errorf("weather.cache_size must be positive")
	}

	for name, d := range map[string]time.Duration{
		"server.read_header_timeout": c.Server.ReadHeaderTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
		"weather.request_timeout":    c.Weather.RequestTimeout,
		"weather.cache_ttl":          c.Weather.CacheTTL,
		"database.store_ttl":         c.Database.StoreTTL,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if !slices.Contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of %v", validLogLevels)
	}
	if !slices.Contains(validLogFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of %v", validLogFormats)
	}

	if c.Metrics.Enabled {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /")
		}
		if slices.Contains(reservedPaths, c.Metrics.Path) {
			return fmt.Errorf("metrics.path %q collides with a built-in route", c.Metrics.Path)
		}
	}

	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

// WidgetURL is the public address of the weather widget endpoint. The widget
// path is joined onto public_url's path; its query string is kept.
func (c *Config) WidgetURL() string {
	u, err := url.Parse(c.Server.PublicURL)
	if err != nil {
		return strings.TrimRight(c.Server.PublicURL, "/") + "/widget/weather"
	}
	return u.JoinPath("widget", "weather").String()
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"request_timeout", cfg.Weather.RequestTimeoutRaw, &cfg.Weather.RequestTimeout},
		{"cache_ttl", cfg.Weather.CacheTTLRaw, &cfg.Weather.CacheTTL},
		{"store_ttl", cfg.Database.StoreTTLRaw, &cfg.Database.StoreTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := str2duration.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
