// ABOUTME: MCP Streamable HTTP endpoint that routes requests to per-session handlers.
// ABOUTME: Decides for every request whether to resume, initialize, or reject a session.

package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/2389/weather-mcp/internal/session"
)

// SessionIDHeader carries the session id on every request after initialize.
const SessionIDHeader = "Mcp-Session-Id"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

const methodInitialize = "initialize"

// Messages returned to clients that must re-initialize.
const (
	msgSessionNotFound = "Session not found"
	msgNoValidSession  = "Bad Request: No valid session ID provided"
	msgBodyTooLarge    = "Bad Request: request body too large"
)

// Route outcomes reported to the RouteObserver.
const (
	RouteResume     = "resume"
	RouteInitialize = "initialize"
	RouteNotFound   = "not_found"
	RouteRejected   = "rejected"
)

// RouteObserver is notified of every routing decision. Implementations must not block.
type RouteObserver interface {
	RequestRouted(method, outcome string)
}

// Config holds configuration for the MCP endpoint.
type Config struct {
	Registry *session.Registry
	Logger   *slog.Logger
	Observer RouteObserver
}

// Router routes /mcp requests to the session registry.
type Router struct {
	registry *session.Registry
	logger   *slog.Logger
	observer RouteObserver
}

// NewRouter creates a new MCP endpoint with the given configuration.
func NewRouter(cfg Config) (*Router, error) {
	if cfg.Registry == nil {
		return nil, errors.New("session registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry: cfg.Registry,
		logger:   logger,
		observer: cfg.Observer,
	}, nil
}

// Path is where the MCP endpoint is mounted.
const Path = "/mcp"

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Router) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(Path, s.handleMCP)
}

// ServeHTTP lets the endpoint be mounted directly.
func (s *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handleMCP(w, r)
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE per the
// Streamable HTTP transport.
func (s *Router) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet, http.MethodDelete:
		s.handleSessionRequest(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost resumes the session named by the header, or starts a new one when
// the header is absent and the body is an initialize request.
func (s *Router) handlePost(w http.ResponseWriter, r *http.Request) {
	if sessionID := sessionIDFromRequest(r); sessionID != "" {
		s.resume(w, r, sessionID)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	_ = r.Body.Close()
	if err != nil {
		s.reject(w, r, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.reject(w, r, msgBodyTooLarge)
		return
	}
	if !isInitializeRequest(body) {
		s.reject(w, r, msgNoValidSession)
		return
	}

	// The handler reads the body again.
	r.Body = io.NopCloser(bytes.NewReader(body))
	s.initialize(w, r)
}

// handleSessionRequest serves the GET stream and DELETE termination, both of
// which require an existing session.
func (s *Router) handleSessionRequest(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		s.notFound(w, r, sessionID)
		return
	}
	s.resume(w, r, sessionID)
}

// resume forwards the request unchanged to the session's handler.
func (s *Router) resume(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := s.registry.Lookup(sessionID)
	if !ok {
		s.notFound(w, r, sessionID)
		return
	}
	s.routed(r, RouteResume)
	sess.Handler().ServeHTTP(w, r)
}

// initialize creates a session and hands it the initialize request. The
// handler registers the session itself once the handshake succeeds; a session
// still pending afterwards never completed it and is discarded.
func (s *Router) initialize(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Create(r.Context())
	if err != nil {
		s.logger.Error("failed to create MCP session", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrRegistryClosed) {
			status = http.StatusServiceUnavailable
		}
		writeJSONError(w, status, "Failed to create session")
		return
	}
	s.routed(r, RouteInitialize)

	sess.Handler().ServeHTTP(w, r)

	if sess.State() == session.StatePending {
		s.logger.Warn("MCP handshake did not complete, discarding session", "session_id", sess.ID())
		if err := sess.Handler().Close(); err != nil {
			s.logger.Debug("closing abandoned session", "session_id", sess.ID(), "error", err)
		}
	}
}

func (s *Router) notFound(w http.ResponseWriter, r *http.Request, sessionID string) {
	s.logger.Debug("MCP session not found", "method", r.Method, "session_id", sessionID)
	s.routed(r, RouteNotFound)
	http.Error(w, msgSessionNotFound, http.StatusNotFound)
}

func (s *Router) reject(w http.ResponseWriter, r *http.Request, message string) {
	s.logger.Debug("rejected MCP request", "method", r.Method, "reason", message)
	s.routed(r, RouteRejected)
	writeJSONError(w, http.StatusBadRequest, message)
}

func (s *Router) routed(r *http.Request, outcome string) {
	if s.observer != nil {
		s.observer.RequestRouted(r.Method, outcome)
	}
}

// sessionIDFromRequest returns the trimmed session header value.
func sessionIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionIDHeader))
}

// isInitializeRequest reports whether body is a single JSON-RPC initialize call.
func isInitializeRequest(body []byte) bool {
	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		return false
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		return false
	}
	return req.Method == methodInitialize && req.IsCall()
}

// errorResponse is the body of a rejected request.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
}

// writeJSONError writes {"error":{"message":...}} with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Message: message}})
}
