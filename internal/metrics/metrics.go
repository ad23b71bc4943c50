// ABOUTME: Prometheus metrics for sessions, MCP routing, upstream calls, and HTTP traffic.
// ABOUTME: Implements the observer interfaces of the session, mcp, and weather packages.

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "weather_mcp"

// Metrics holds the process's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive    prometheus.Gauge
	sessionsOpened    prometheus.Counter
	sessionsClosed    prometheus.Counter
	sessionsAbandoned prometheus.Counter
	sessionDuration   prometheus.Histogram

	mcpRequests *prometheus.CounterVec

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	locations        *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "MCP sessions currently registered",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "MCP sessions that completed the initialize handshake",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Registered MCP sessions that have closed",
		}),
		sessionsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_abandoned_total",
			Help:      "MCP sessions discarded before the handshake completed",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of closed MCP sessions",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
		}),
		mcpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mcp_requests_total",
			Help:      "Requests on the MCP endpoint by HTTP method and routing outcome",
		}, []string{"method", "outcome"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Open-Meteo requests by API and HTTP status (0 for transport errors)",
		}, []string{"api", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Open-Meteo request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api"}),
		locations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_resolved_total",
			Help:      "City resolutions by the tier that answered",
		}, []string{"source"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method, and status code",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsActive,
		m.sessionsOpened,
		m.sessionsClosed,
		m.sessionsAbandoned,
		m.sessionDuration,
		m.mcpRequests,
		m.upstreamRequests,
		m.upstreamDuration,
		m.locations,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionOpened implements session.Observer.
func (m *Metrics) SessionOpened() {
	m.sessionsActive.Inc()
	m.sessionsOpened.Inc()
}

// SessionClosed implements session.Observer.
func (m *Metrics) SessionClosed(lifetime time.Duration) {
	m.sessionsActive.Dec()
	m.sessionsClosed.Inc()
	m.sessionDuration.Observe(lifetime.Seconds())
}

// SessionAbandoned implements session.Observer.
func (m *Metrics) SessionAbandoned() {
	m.sessionsAbandoned.Inc()
}

// RequestRouted implements mcp.RouteObserver.
func (m *Metrics) RequestRouted(method, outcome string) {
	m.mcpRequests.WithLabelValues(method, outcome).Inc()
}

// UpstreamRequest implements weather.UpstreamObserver.
func (m *Metrics) UpstreamRequest(api string, status int, elapsed time.Duration) {
	m.upstreamRequests.WithLabelValues(api, strconv.Itoa(status)).Inc()
	m.upstreamDuration.WithLabelValues(api).Observe(elapsed.Seconds())
}

// LocationResolved implements weather.ResolveObserver.
func (m *Metrics) LocationResolved(source string) {
	m.locations.WithLabelValues(source).Inc()
}

// Instrument wraps next, recording status and latency under route.
// Long-lived streams are counted when they end.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snoop := httpsnoop.CaptureMetrics(next, w, r)
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(snoop.Code)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(snoop.Duration.Seconds())
	})
}
