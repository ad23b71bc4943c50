// ABOUTME: Tests for the Prometheus metrics and HTTP instrumentation.
// ABOUTME: Reads collector values back with testutil and scrapes the handler.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	m := New()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed(90 * time.Second)
	m.SessionAbandoned()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsOpened))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsAbandoned))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sessionDuration))
}

func TestRequestRouted(t *testing.T) {
	m := New()

	m.RequestRouted("POST", "initialize")
	m.RequestRouted("GET", "not_found")
	m.RequestRouted("GET", "not_found")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.mcpRequests.WithLabelValues("POST", "initialize")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.mcpRequests.WithLabelValues("GET", "not_found")))
}

func TestUpstreamAndLocations(t *testing.T) {
	m := New()

	m.UpstreamRequest("geocoding", 200, 20*time.Millisecond)
	m.UpstreamRequest("forecast", 0, time.Second)
	m.LocationResolved("cache")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("geocoding", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("forecast", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.locations.WithLabelValues("cache")))
}

func TestInstrument(t *testing.T) {
	m := New()
	h := m.Instrument("widget", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widget/weather", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("widget", "GET", "404")))
}

func TestInstrument_ImplicitOK(t *testing.T) {
	m := New()
	h := m.Instrument("health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("health", "GET", "200")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SessionOpened()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "weather_mcp_sessions_active 1")
	assert.Contains(t, string(body), "go_goroutines")
}
