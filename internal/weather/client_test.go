// ABOUTME: Tests for the Open-Meteo client against fake upstream servers.
// ABOUTME: Checks query parameters, not-found handling, and upstream failures.

package weather

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bostonGeocoding = `{"results":[{"name":"Boston","country":"United States","latitude":42.36,"longitude":-71.06}]}`

const bostonForecast = `{
  "latitude": 42.36,
  "longitude": -71.06,
  "timezone": "America/New_York",
  "current": {"time": "2025-01-06T10:00", "temperature_2m": 72.5, "weather_code": 0},
  "daily": {
    "time": ["2025-01-06", "2025-01-07", "2025-01-08", "2025-01-09"],
    "temperature_2m_max": [80.1, 75, 70.4, 68],
    "temperature_2m_min": [60, 58.2, 55, 50],
    "weather_code": [0, 61, 3, 95]
  }
}`

// fakeUpstream serves canned geocoding and forecast responses and records queries.
type fakeUpstream struct {
	mu             sync.Mutex
	geocodeQueries []url.Values
	forecastQuery  []url.Values

	geocodeStatus  int
	geocodeBody    string
	forecastStatus int
	forecastBody   string

	server *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()

	f := &fakeUpstream{
		geocodeStatus:  http.StatusOK,
		geocodeBody:    bostonGeocoding,
		forecastStatus: http.StatusOK,
		forecastBody:   bostonForecast,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.geocodeQueries = append(f.geocodeQueries, r.URL.Query())
		status, body := f.geocodeStatus, f.geocodeBody
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.forecastQuery = append(f.forecastQuery, r.URL.Query())
		status, body := f.forecastStatus, f.forecastBody
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) client(t *testing.T, observer UpstreamObserver) *Client {
	t.Helper()

	c, err := NewClient(ClientConfig{
		GeocodingURL: f.server.URL + "/v1/search",
		ForecastURL:  f.server.URL + "/v1/forecast",
		Observer:     observer,
	})
	require.NoError(t, err)
	return c
}

func (f *fakeUpstream) counts() (geocode, forecast int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.geocodeQueries), len(f.forecastQuery)
}

func (f *fakeUpstream) geocodes() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.geocodeQueries...)
}

func (f *fakeUpstream) forecasts() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.forecastQuery...)
}

func (f *fakeUpstream) setGeocode(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geocodeStatus, f.geocodeBody = status, body
}

func (f *fakeUpstream) setForecast(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forecastStatus, f.forecastBody = status, body
}

type upstreamCall struct {
	api    string
	status int
}

type recordingUpstreamObserver struct {
	mu    sync.Mutex
	calls []upstreamCall
}

func (o *recordingUpstreamObserver) UpstreamRequest(api string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, upstreamCall{api, status})
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(ClientConfig{})
	require.NoError(t, err)

	assert.Equal(t, DefaultGeocodingURL, c.geocodingURL)
	assert.Equal(t, DefaultForecastURL, c.forecastURL)
	assert.Equal(t, DefaultTimezone, c.timezone)
	assert.Equal(t, DefaultRequestTimeout, c.http.Timeout)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(ClientConfig{GeocodingURL: "ftp://example.com/search"})
	assert.Error(t, err)
}

func TestClient_ResolveCity(t *testing.T) {
	f := newFakeUpstream(t)
	observer := &recordingUpstreamObserver{}
	c := f.client(t, observer)

	coords, err := c.ResolveCity(context.Background(), "Boston")
	require.NoError(t, err)

	assert.Equal(t, 42.36, coords.Latitude)
	assert.Equal(t, -71.06, coords.Longitude)
	assert.Equal(t, "Boston", coords.Name)
	assert.Equal(t, "United States", coords.Country)

	queries := f.geocodes()
	require.Len(t, queries, 1)
	q := queries[0]
	assert.Equal(t, "Boston", q.Get("name"))
	assert.Equal(t, "10", q.Get("count"))
	assert.Equal(t, "en", q.Get("language"))
	assert.Equal(t, "json", q.Get("format"))

	assert.Equal(t, []upstreamCall{{APIGeocoding, http.StatusOK}}, observer.calls)
}

func TestClient_ResolveCity_EscapesName(t *testing.T) {
	f := newFakeUpstream(t)
	c := f.client(t, nil)

	_, err := c.ResolveCity(context.Background(), "Saint-Jean & Co")
	require.NoError(t, err)

	queries := f.geocodes()
	require.Len(t, queries, 1)
	assert.Equal(t, "Saint-Jean & Co", queries[0].Get("name"))
}

func TestClient_ResolveCity_NotFound(t *testing.T) {
	for _, body := range []string{`{}`, `{"results":[]}`, `{"generationtime_ms":0.5}`} {
		t.Run(body, func(t *testing.T) {
			f := newFakeUpstream(t)
			f.setGeocode(http.StatusOK, body)
			c := f.client(t, nil)

			_, err := c.ResolveCity(context.Background(), "Atlantis")
			assert.ErrorIs(t, err, ErrCityNotFound)
		})
	}
}

func TestClient_ResolveCity_MissingCoordinates(t *testing.T) {
	f := newFakeUpstream(t)
	f.setGeocode(http.StatusOK, `{"results":[{"name":"Nowhere","latitude":12.5}]}`)
	c := f.client(t, nil)

	_, err := c.ResolveCity(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, ErrMissingCoordinates)
}

func TestClient_ResolveCity_UpstreamStatus(t *testing.T) {
	f := newFakeUpstream(t)
	f.setGeocode(http.StatusServiceUnavailable, `{"error":true}`)
	c := f.client(t, nil)

	_, err := c.ResolveCity(context.Background(), "Boston")

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, APIGeocoding, upstream.API)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.Status)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_ResolveCity_MalformedBody(t *testing.T) {
	f := newFakeUpstream(t)
	f.setGeocode(http.StatusOK, `<html>oops</html>`)
	c := f.client(t, nil)

	_, err := c.ResolveCity(context.Background(), "Boston")

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, 0, upstream.Status)
}

func TestClient_ResolveCity_Unreachable(t *testing.T) {
	f := newFakeUpstream(t)
	observer := &recordingUpstreamObserver{}
	c := f.client(t, observer)
	f.server.Close()

	_, err := c.ResolveCity(context.Background(), "Boston")

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, []upstreamCall{{APIGeocoding, 0}}, observer.calls)
}

func TestClient_Forecast(t *testing.T) {
	f := newFakeUpstream(t)
	c := f.client(t, nil)

	fc, err := c.Forecast(context.Background(), Coordinates{Latitude: 42.36, Longitude: -71.06})
	require.NoError(t, err)

	assert.Equal(t, 72.5, fc.Current.Temperature)
	assert.Equal(t, 0, fc.Current.WeatherCode)
	assert.Equal(t, 4, fc.Daily.Days())
	assert.Equal(t, ints(0, 61, 3, 95), fc.Daily.WeatherCode)
	assert.Equal(t, floats(80.1, 75, 70.4, 68), fc.Daily.TemperatureMax)

	queries := f.forecasts()
	require.Len(t, queries, 1)
	q := queries[0]
	assert.Equal(t, "42.36", q.Get("latitude"))
	assert.Equal(t, "-71.06", q.Get("longitude"))
	assert.Equal(t, "temperature_2m_max,temperature_2m_min,weather_code", q.Get("daily"))
	assert.Equal(t, "temperature_2m,weather_code", q.Get("current"))
	assert.Equal(t, "America/New_York", q.Get("timezone"))
	assert.Equal(t, "4", q.Get("forecast_days"))
	assert.Equal(t, "mph", q.Get("wind_speed_unit"))
	assert.Equal(t, "fahrenheit", q.Get("temperature_unit"))
	assert.Equal(t, "inch", q.Get("precipitation_unit"))
}

func TestClient_Forecast_ConfiguredUnits(t *testing.T) {
	f := newFakeUpstream(t)
	c, err := NewClient(ClientConfig{
		ForecastURL:     f.server.URL + "/v1/forecast",
		Timezone:        "Europe/Paris",
		TemperatureUnit: "celsius",
	})
	require.NoError(t, err)

	_, err = c.Forecast(context.Background(), Coordinates{Latitude: 48.85, Longitude: 2.35})
	require.NoError(t, err)

	queries := f.forecasts()
	require.Len(t, queries, 1)
	q := queries[0]
	assert.Equal(t, "Europe/Paris", q.Get("timezone"))
	assert.Equal(t, "celsius", q.Get("temperature_unit"))
}

func TestClient_Forecast_InvalidCoordinatesSkipsCall(t *testing.T) {
	f := newFakeUpstream(t)
	c := f.client(t, nil)

	for _, at := range []Coordinates{
		{Latitude: math.NaN(), Longitude: 1},
		{Latitude: 1, Longitude: math.NaN()},
		{Latitude: 91, Longitude: 0},
		{Latitude: 0, Longitude: -181},
	} {
		_, err := c.Forecast(context.Background(), at)
		assert.ErrorIs(t, err, ErrMissingCoordinates)
	}

	_, forecasts := f.counts()
	assert.Equal(t, 0, forecasts)
}

func TestClient_Forecast_EquatorIsValid(t *testing.T) {
	f := newFakeUpstream(t)
	c := f.client(t, nil)

	_, err := c.Forecast(context.Background(), Coordinates{Latitude: 0, Longitude: 0})
	require.NoError(t, err)
}

func TestClient_Forecast_UpstreamStatus(t *testing.T) {
	f := newFakeUpstream(t)
	f.setForecast(http.StatusInternalServerError, `{"error":true}`)
	c := f.client(t, nil)

	_, err := c.Forecast(context.Background(), Coordinates{Latitude: 42.36, Longitude: -71.06})

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, APIForecast, upstream.API)
	assert.Equal(t, http.StatusInternalServerError, upstream.Status)
}

func TestClient_ContextCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{GeocodingURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.ResolveCity(ctx, "Boston")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Forecast_NullDailyValues(t *testing.T) {
	f := newFakeUpstream(t)
	f.forecastBody = `{
  "current": {"time": "2025-01-06T10:00", "temperature_2m": 72.5, "weather_code": 0},
  "daily": {
    "time": ["2025-01-06", "2025-01-07"],
    "temperature_2m_max": [80.1, null],
    "temperature_2m_min": [null, 58.2],
    "weather_code": [0, null]
  }
}`
	c := f.client(t, nil)

	fc, err := c.Forecast(context.Background(), Coordinates{Latitude: 42.36, Longitude: -71.06})
	require.NoError(t, err)

	require.Equal(t, 2, fc.Daily.Days())
	require.NotNil(t, fc.Daily.TemperatureMax[0])
	assert.Equal(t, 80.1, *fc.Daily.TemperatureMax[0])
	assert.Nil(t, fc.Daily.TemperatureMax[1])
	assert.Nil(t, fc.Daily.TemperatureMin[0])
	assert.Nil(t, fc.Daily.WeatherCode[1])
}
