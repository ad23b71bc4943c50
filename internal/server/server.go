// ABOUTME: Server orchestrator that wires the MCP endpoint, weather widget, and health checks
// ABOUTME: Manages HTTP, optional gRPC health, and Tailscale listener lifecycle

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/cors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/tsnet"

	"github.com/2389/weather-mcp/internal/cache"
	"github.com/2389/weather-mcp/internal/config"
	"github.com/2389/weather-mcp/internal/mcp"
	"github.com/2389/weather-mcp/internal/metrics"
	"github.com/2389/weather-mcp/internal/session"
	"github.com/2389/weather-mcp/internal/store"
	"github.com/2389/weather-mcp/internal/weather"
)

// ImplementationName is what the MCP server reports in its initialize result.
const ImplementationName = "Weather MCP UI"

// Server orchestrates the weather-mcp components.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	registry  *session.Registry
	router    *mcp.Router
	tool      *mcp.WeatherTool
	widget    *weather.Handler
	locations *cache.Cache[string, weather.Coordinates]
	store     store.LocationStore // nil when database.path is empty

	// cancelSessions ends the base context every MCP session runs under.
	cancelSessions context.CancelFunc

	handler     http.Handler
	httpServer  *http.Server
	grpcServer  *grpc.Server // nil unless server.grpc_addr is set
	health      *health.Server
	tsnetServer *tsnet.Server

	draining atomic.Bool
	shutdown atomic.Bool
}

// New builds a Server from cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	if err := s.initWeather(); err != nil {
		s.closeResources()
		return nil, err
	}
	if err := s.initMCP(version); err != nil {
		s.closeResources()
		return nil, err
	}

	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	if cfg.Server.GRPCAddr != "" {
		s.grpcServer, s.health = newHealthServer()
	}

	return s, nil
}

// initWeather builds the lookup tiers, upstream client, and widget handler.
func (s *Server) initWeather() error {
	cfg := s.config

	if cfg.Database.Path != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening location store: %w", err)
		}
		s.store = sqlStore
	}

	client, err := weather.NewClient(weather.ClientConfig{
		GeocodingURL:      cfg.Weather.GeocodingURL,
		ForecastURL:       cfg.Weather.ForecastURL,
		Timezone:          cfg.Weather.Timezone,
		TemperatureUnit:   cfg.Weather.TemperatureUnit,
		WindSpeedUnit:     cfg.Weather.WindSpeedUnit,
		PrecipitationUnit: cfg.Weather.PrecipitationUnit,
		Timeout:           cfg.Weather.RequestTimeout,
		Observer:          s.metrics,
		Logger:            s.logger.With("component", "open-meteo"),
	})
	if err != nil {
		return fmt.Errorf("creating weather client: %w", err)
	}

	s.locations = cache.New[string, weather.Coordinates](cfg.Weather.CacheTTL, cfg.Weather.CacheSize)

	resolverCfg := weather.ResolverConfig{
		Geocoder: client,
		Cache:    s.locations,
		StoreTTL: cfg.Database.StoreTTL,
		Observer: s.metrics,
		Logger:   s.logger.With("component", "resolver"),
	}
	if s.store != nil {
		resolverCfg.Store = s.store
	}
	resolver, err := weather.NewResolver(resolverCfg)
	if err != nil {
		return fmt.Errorf("creating city resolver: %w", err)
	}

	renderer, err := weather.NewRenderer(s.logger.With("component", "widget"))
	if err != nil {
		return fmt.Errorf("creating widget renderer: %w", err)
	}

	s.widget, err = weather.NewHandler(weather.HandlerConfig{
		Resolver:   resolver,
		Forecaster: client,
		Renderer:   renderer,
		Logger:     s.logger.With("component", "widget"),
	})
	if err != nil {
		return fmt.Errorf("creating widget handler: %w", err)
	}
	return nil
}

// initMCP builds the session registry and the router in front of it.
func (s *Server) initMCP(version string) error {
	tool, err := mcp.NewWeatherTool(s.config.WidgetURL())
	if err != nil {
		return fmt.Errorf("creating weather tool: %w", err)
	}
	s.tool = tool

	baseCtx, cancel := context.WithCancel(context.Background())
	s.cancelSessions = cancel

	factory, err := mcp.NewHandlerFactory(mcp.FactoryConfig{
		BaseContext: baseCtx,
		Name:        ImplementationName,
		Version:     version,
		Tools:       []mcp.Tool{tool},
		Logger:      s.logger.With("component", "mcp"),
	})
	if err != nil {
		return fmt.Errorf("creating MCP handler factory: %w", err)
	}

	s.registry, err = session.NewRegistry(session.Config{
		Factory:  factory,
		Logger:   s.logger.With("component", "sessions"),
		Observer: s.metrics,
	})
	if err != nil {
		return fmt.Errorf("creating session registry: %w", err)
	}

	s.router, err = mcp.NewRouter(mcp.Config{
		Registry: s.registry,
		Logger:   s.logger.With("component", "router"),
		Observer: s.metrics,
	})
	if err != nil {
		return fmt.Errorf("creating MCP router: %w", err)
	}
	return nil
}

// routes assembles the HTTP handler tree.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(mcp.Path, s.metrics.Instrument("mcp", s.router))
	mux.Handle(weather.WidgetPath, s.metrics.Instrument("widget", s.widget))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	if s.config.Metrics.Enabled {
		mux.Handle(s.config.Metrics.Path, s.metrics.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-Id"},
		ExposedHeaders: []string{mcp.SessionIDHeader},
	})
	return c.Handler(mux)
}

// Handler returns the HTTP handler tree without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions reports the active MCP sessions.
func (s *Server) Sessions() []session.Info {
	return s.registry.Snapshot()
}

// setupTCPListeners creates standard TCP listeners for HTTP and, when configured, gRPC.
func (s *Server) setupTCPListeners() (httpLn, grpcLn net.Listener, err error) {
	s.logger.Info("starting weather-mcp",
		"http_addr", s.config.Server.HTTPAddr,
		"grpc_addr", s.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if s.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return httpLn, grpcLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (s *Server) setupListeners(ctx context.Context) (httpLn, grpcLn net.Listener, err error) {
	if s.config.Tailscale.Enabled {
		return s.setupTailscaleListeners(ctx)
	}
	return s.setupTCPListeners()
}

// startServers starts the HTTP and gRPC servers in goroutines, returning an error channel.
func (s *Server) startServers(httpLn, grpcLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("HTTP server listening",
			"addr", httpLn.Addr().String(),
			"mcp", s.config.Server.PublicURL+mcp.Path,
			"widget", s.config.WidgetURL(),
		)
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if grpcLn != nil {
		go func() {
			s.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := s.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (s *Server) Run(ctx context.Context) error {
	s.pruneLocations(ctx)

	httpListener, grpcListener, err := s.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := s.startServers(httpListener, grpcListener)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// pruneLocations drops stored locations older than the store TTL.
func (s *Server) pruneLocations(ctx context.Context) {
	if s.store == nil || s.config.Database.StoreTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.config.Database.StoreTTL)
	if _, err := s.store.PruneLocations(ctx, cutoff); err != nil {
		s.logger.Warn("pruning stored locations", "error", err)
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The Run context is already canceled by the time this is called.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeResources releases everything that is not a listener. Safe on a
// partially built Server.
func (s *Server) closeResources() []error {
	var errs []error
	if s.cancelSessions != nil {
		s.cancelSessions()
	}
	if s.locations != nil {
		s.locations.Close()
	}
	if s.store != nil {
		errs = appendCloseError(errs, "store close", s.store.Close())
	}
	return errs
}

// Shutdown stops accepting sessions, closes every open session so streams
// end, then stops the listeners and releases resources. Calling it again is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("shutting down weather-mcp")
	s.draining.Store(true)

	var errs []error
	// Open GET streams keep their connections busy, so sessions close first.
	errs = appendCloseError(errs, "session shutdown", s.registry.Shutdown(ctx))
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.shutdownGRPCServer(ctx)

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}

	errs = append(errs, s.closeResources()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
