// ABOUTME: HTTP handler for GET /widget/weather serving the rendered widget fragment.
// ABOUTME: Maps unknown cities to 404 and upstream failures to 502 with an error fragment.

package weather

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// WidgetPath is where the widget is served.
const WidgetPath = "/widget/weather"

// Messages shown in error fragments.
const (
	msgCityRequired       = "City is required"
	msgCityNotFound       = "City not found"
	msgServiceUnavailable = "Weather service unavailable"
)

// CityResolver resolves a city name to coordinates.
type CityResolver interface {
	Resolve(ctx context.Context, city string) (Coordinates, error)
}

// Forecaster fetches a forecast for coordinates.
type Forecaster interface {
	Forecast(ctx context.Context, at Coordinates) (*Forecast, error)
}

// HandlerConfig holds configuration for the widget handler.
type HandlerConfig struct {
	Resolver   CityResolver
	Forecaster Forecaster
	Renderer   *Renderer
	Logger     *slog.Logger
}

// Handler serves the weather widget.
type Handler struct {
	resolver   CityResolver
	forecaster Forecaster
	renderer   *Renderer
	logger     *slog.Logger
}

// NewHandler creates the widget handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if cfg.Forecaster == nil {
		return nil, errors.New("forecaster is required")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("renderer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		resolver:   cfg.Resolver,
		forecaster: cfg.Forecaster,
		renderer:   cfg.Renderer,
		logger:     logger,
	}, nil
}

// RegisterRoutes registers the widget endpoint on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(WidgetPath, h)
}

// ServeHTTP renders the widget for the city query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		h.writeError(w, http.StatusBadRequest, msgCityRequired)
		return
	}

	ctx := r.Context()
	coords, err := h.resolver.Resolve(ctx, city)
	if err != nil {
		if errors.Is(err, ErrCityNotFound) {
			h.logger.Debug("widget city not found", "city", city)
			h.writeError(w, http.StatusNotFound, msgCityNotFound)
			return
		}
		h.logger.Warn("resolving widget city", "city", city, "error", err)
		h.writeError(w, http.StatusBadGateway, msgServiceUnavailable)
		return
	}

	fc, err := h.forecaster.Forecast(ctx, coords)
	if err != nil {
		h.logger.Warn("fetching forecast", "city", city, "error", err)
		h.writeError(w, http.StatusBadGateway, msgServiceUnavailable)
		return
	}

	body, err := h.renderer.Render(fc)
	if err != nil {
		h.logger.Error("rendering widget", "city", city, "error", err)
		h.writeError(w, http.StatusBadGateway, msgServiceUnavailable)
		return
	}

	writeHTML(w, http.StatusOK, body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	body, err := h.renderer.RenderError(message)
	if err != nil {
		h.logger.Error("rendering widget error", "error", err)
		http.Error(w, message, status)
		return
	}
	writeHTML(w, status, body)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
