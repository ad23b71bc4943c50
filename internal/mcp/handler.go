// ABOUTME: Per-session protocol handlers backed by the MCP go-sdk streamable transport.
// ABOUTME: Reports handshake completion and session end back to the registry through hooks.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/weather-mcp/internal/session"
)

// Tool installs a capability on a freshly created MCP server.
type Tool interface {
	Bind(server *mcp.Server)
}

// FactoryConfig holds configuration for the handler factory.
type FactoryConfig struct {
	// BaseContext bounds the lifetime of every session. Sessions outlive the
	// request that created them, so this must not be a request context.
	BaseContext context.Context
	Name        string
	Version     string
	Tools       []Tool
	Logger      *slog.Logger
}

// HandlerFactory builds one MCP server and transport per session.
type HandlerFactory struct {
	ctx    context.Context
	impl   *mcp.Implementation
	tools  []Tool
	logger *slog.Logger
}

var _ session.Factory = (*HandlerFactory)(nil)

// NewHandlerFactory creates a factory for go-sdk backed session handlers.
func NewHandlerFactory(cfg FactoryConfig) (*HandlerFactory, error) {
	if cfg.BaseContext == nil {
		return nil, errors.New("base context is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("implementation name is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HandlerFactory{
		ctx:    cfg.BaseContext,
		impl:   &mcp.Implementation{Name: cfg.Name, Version: cfg.Version},
		tools:  cfg.Tools,
		logger: logger,
	}, nil
}

// NewHandler connects a new MCP server to a streamable transport bound to id.
// hooks.Established fires when initialize succeeds, before its response is
// written; hooks.Closed fires once the server session has ended.
func (f *HandlerFactory) NewHandler(_ context.Context, id string, hooks session.Hooks) (session.Handler, error) {
	server := mcp.NewServer(f.impl, nil)
	for _, tool := range f.tools {
		tool.Bind(server)
	}
	server.AddReceivingMiddleware(confirmHandshake(id, hooks.Established))

	transport := &mcp.StreamableServerTransport{SessionID: id}
	ss, err := server.Connect(f.ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting MCP server: %w", err)
	}

	h := &streamHandler{
		id:        id,
		transport: transport,
		session:   ss,
		onClosed:  hooks.Closed,
		done:      make(chan struct{}),
		logger:    f.logger.With("session_id", id),
	}
	go h.wait()
	return h, nil
}

// confirmHandshake reports a successful initialize to established.
func confirmHandshake(id string, established func(string)) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			result, err := next(ctx, method, req)
			if method == methodInitialize && err == nil && established != nil {
				established(id)
			}
			return result, err
		}
	}
}

// streamHandler serves one session's HTTP traffic.
type streamHandler struct {
	id        string
	transport *mcp.StreamableServerTransport
	session   *mcp.ServerSession
	onClosed  func()
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// ServeHTTP handles DELETE itself and hands GET and POST to the transport,
// which sets the session header on the initialize response.
func (h *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodDelete:
		if err := h.Close(); err != nil {
			h.logger.Debug("closing MCP session", "error", err)
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.transport.ServeHTTP(w, r)
	}
}

// Close ends the server session and returns after the Closed hook has run.
// Safe to call more than once.
func (h *streamHandler) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.session.Close()
	})
	<-h.done
	return h.closeErr
}

func (h *streamHandler) wait() {
	defer close(h.done)
	if err := h.session.Wait(); err != nil {
		h.logger.Debug("MCP session ended", "error", err)
	}
	if h.onClosed != nil {
		h.onClosed()
	}
}
