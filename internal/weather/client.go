// ABOUTME: Open-Meteo HTTP client for geocoding city names and fetching forecasts.
// ABOUTME: Upstream failures surface as sentinel errors or *UpstreamError.

package weather

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default Open-Meteo endpoints.
const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

// Default forecast units, matching the widget's °F labels.
const (
	DefaultTimezone          = "America/New_York"
	DefaultTemperatureUnit   = "fahrenheit"
	DefaultWindSpeedUnit     = "mph"
	DefaultPrecipitationUnit = "inch"
	DefaultRequestTimeout    = 10 * time.Second
)

const (
	geocodingResultCount = 10
	forecastDays         = 4

	// maxResponseSize bounds upstream bodies.
	maxResponseSize = 1 << 20
)

// Upstream API names used in errors and metrics.
const (
	APIGeocoding = "geocoding"
	APIForecast  = "forecast"
)

var (
	// ErrCityNotFound is returned when geocoding yields no matches.
	ErrCityNotFound = errors.New("city not found")
	// ErrMissingCoordinates is returned when latitude or longitude is absent
	// or outside its valid range.
	ErrMissingCoordinates = errors.New("latitude and longitude are required")
)

// UpstreamError reports a non-2xx response or unreadable body from Open-Meteo.
type UpstreamError struct {
	API    string
	Status int // 0 when the request never got a response
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: upstream returned status %d", e.API, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.API, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Coordinates is a resolved location.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// Valid reports whether both coordinates are present and in range.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Forecast is the subset of the Open-Meteo forecast response the widget renders.
type Forecast struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Current   Current `json:"current"`
	Daily     Daily   `json:"daily"`

	CurrentUnits struct {
		Temperature string `json:"temperature_2m"`
	} `json:"current_units"`
}

// Current holds the current conditions.
type Current struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature_2m"`
	WeatherCode int     `json:"weather_code"`
}

// Daily holds parallel per-day arrays, indexed by day. Open-Meteo sends null
// for values it has no data for; those decode as nil.
type Daily struct {
	Time           []string   `json:"time"`
	TemperatureMax []*float64 `json:"temperature_2m_max"`
	TemperatureMin []*float64 `json:"temperature_2m_min"`
	WeatherCode    []*int     `json:"weather_code"`
}

// Days returns the number of complete days across the daily arrays.
func (d Daily) Days() int {
	return min(len(d.Time), len(d.TemperatureMax), len(d.TemperatureMin), len(d.WeatherCode))
}

// UpstreamObserver is notified after every upstream call. Implementations must not block.
type UpstreamObserver interface {
	UpstreamRequest(api string, status int, elapsed time.Duration)
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	GeocodingURL      string
	ForecastURL       string
	Timezone          string
	TemperatureUnit   string
	WindSpeedUnit     string
	PrecipitationUnit string
	Timeout           time.Duration
	HTTPClient        *http.Client
	Observer          UpstreamObserver
	Logger            *slog.Logger
}

// Client calls the Open-Meteo geocoding and forecast APIs.
type Client struct {
	http         *http.Client
	geocodingURL string
	forecastURL  string
	timezone     string
	tempUnit     string
	windUnit     string
	precipUnit   string
	observer     UpstreamObserver
	logger       *slog.Logger
}

// NewClient creates a client, filling unset fields with Open-Meteo defaults.
func NewClient(cfg ClientConfig) (*Client, error) {
	c := &Client{
		http:         cfg.HTTPClient,
		geocodingURL: cmp.Or(cfg.GeocodingURL, DefaultGeocodingURL),
		forecastURL:  cmp.Or(cfg.ForecastURL, DefaultForecastURL),
		timezone:     cmp.Or(cfg.Timezone, DefaultTimezone),
		tempUnit:     cmp.Or(cfg.TemperatureUnit, DefaultTemperatureUnit),
		windUnit:     cmp.Or(cfg.WindSpeedUnit, DefaultWindSpeedUnit),
		precipUnit:   cmp.Or(cfg.PrecipitationUnit, DefaultPrecipitationUnit),
		observer:     cfg.Observer,
		logger:       cfg.Logger,
	}

	for _, raw := range []string{c.geocodingURL, c.forecastURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing upstream URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("upstream URL %q must be http or https", raw)
		}
	}

	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// ResolveCity returns the coordinates of the best geocoding match for name.
func (c *Client) ResolveCity(ctx context.Context, name string) (Coordinates, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", strconv.Itoa(geocodingResultCount))
	q.Set("language", "en")
	q.Set("format", "json")

	var resp struct {
		Results []struct {
			Name      string   `json:"name"`
			Country   string   `json:"country"`
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, APIGeocoding, c.geocodingURL, q, &resp); err != nil {
		return Coordinates{}, err
	}

	if len(resp.Results) == 0 {
		return Coordinates{}, ErrCityNotFound
	}
	best := resp.Results[0]
	if best.Latitude == nil || best.Longitude == nil {
		return Coordinates{}, fmt.Errorf("%s result for %q: %w", APIGeocoding, name, ErrMissingCoordinates)
	}

	return Coordinates{
		Latitude:  *best.Latitude,
		Longitude: *best.Longitude,
		Name:      best.Name,
		Country:   best.Country,
	}, nil
}

// Forecast fetches current conditions and a four-day daily forecast.
// Invalid coordinates fail with ErrMissingCoordinates before any request.
func (c *Client) Forecast(ctx context.Context, at Coordinates) (*Forecast, error) {
	if !at.Valid() {
		return nil, ErrMissingCoordinates
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(at.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(at.Longitude, 'f', -1, 64))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code")
	q.Set("current", "temperature_2m,weather_code")
	q.Set("timezone", c.timezone)
	q.Set("forecast_days", strconv.Itoa(forecastDays))
	q.Set("wind_speed_unit", c.windUnit)
	q.Set("temperature_unit", c.tempUnit)
	q.Set("precipitation_unit", c.precipUnit)

	var fc Forecast
	if err := c.getJSON(ctx, APIForecast, c.forecastURL, q, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// getJSON performs a GET against base with query q and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, api, base string, q url.Values, out any) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("parsing %s URL: %w", api, err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", api, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(api, 0, start)
		return &UpstreamError{API: api, Err: err}
	}
	defer resp.Body.Close()
	c.observe(api, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return &UpstreamError{API: api, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return &UpstreamError{API: api, Err: fmt.Errorf("decoding response: %w", err)}
	}

	c.logger.Debug("upstream request", "api", api, "status", resp.StatusCode, "duration", time.Since(start))
	return nil
}

func (c *Client) observe(api string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.UpstreamRequest(api, status, time.Since(start))
	}
}
