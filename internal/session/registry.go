// ABOUTME: Process-wide registry mapping MCP session ids to their protocol handlers.
// ABOUTME: Registration is deferred to the handler's handshake confirmation.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRegistryClosed is returned by Create once Shutdown has started.
var ErrRegistryClosed = errors.New("session registry is shut down")

// maxIDAttempts bounds id regeneration on collision.
const maxIDAttempts = 3

// Config holds the dependencies of a Registry.
type Config struct {
	Factory  Factory
	Logger   *slog.Logger
	Observer Observer
	// NewID overrides id generation. Defaults to random (v4) UUIDs.
	NewID func() string
}

// Registry maps session ids to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // active only
	pending  map[string]*Session // allocated, handshake not confirmed
	closed   bool

	factory  Factory
	logger   *slog.Logger
	observer Observer
	newID    func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Factory == nil {
		return nil, errors.New("handler factory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Registry{
		sessions: make(map[string]*Session),
		pending:  make(map[string]*Session),
		factory:  cfg.Factory,
		logger:   logger,
		observer: observer,
		newID:    newID,
	}, nil
}

// Create allocates a fresh session id and builds its handler. The returned
// session is pending: Lookup will not find it until the handler confirms the
// handshake through Hooks.Established.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	id, err := r.allocateIDLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	sess := &Session{
		id:        id,
		state:     StatePending,
		createdAt: time.Now(),
		registry:  r,
	}
	r.pending[id] = sess
	r.mu.Unlock()

	handler, err := r.factory.NewHandler(ctx, id, Hooks{
		Established: func(confirmed string) { r.establish(sess, confirmed) },
		Closed:      func() { r.retire(sess) },
	})
	if err != nil {
		r.mu.Lock()
		sess.state = StateClosed
		delete(r.pending, id)
		r.mu.Unlock()
		return nil, fmt.Errorf("creating handler for session %s: %w", id, err)
	}

	r.mu.Lock()
	sess.handler = handler
	r.mu.Unlock()

	r.logger.Debug("MCP session allocated", "session_id", id)
	return sess, nil
}

// allocateIDLocked returns an id not held by any active or pending session.
// Must be called with mu held.
func (r *Registry) allocateIDLocked() (string, error) {
	for range maxIDAttempts {
		id := r.newID()
		if id == "" {
			continue
		}
		if _, taken := r.sessions[id]; taken {
			continue
		}
		if _, taken := r.pending[id]; taken {
			continue
		}
		return id, nil
	}
	return "", errors.New("could not allocate a unique session id")
}

// establish moves a pending session into the lookup table.
func (r *Registry) establish(sess *Session, confirmed string) {
	r.mu.Lock()
	if confirmed != sess.id {
		r.mu.Unlock()
		r.logger.Warn("ignoring handshake confirmation for mismatched id",
			"session_id", sess.id,
			"confirmed_id", confirmed,
		)
		return
	}
	if sess.state != StatePending || r.closed {
		r.mu.Unlock()
		return
	}
	sess.state = StateActive
	delete(r.pending, sess.id)
	r.sessions[sess.id] = sess
	total := len(r.sessions)
	r.mu.Unlock()

	r.observer.SessionOpened()
	r.logger.Info("MCP session initialized", "session_id", sess.id, "active_sessions", total)
}

// retire removes a session once its handler has stopped. Retiring a session
// that never became active only releases its pending slot.
func (r *Registry) retire(sess *Session) {
	r.mu.Lock()
	prev := sess.state
	if prev == StateClosed {
		r.mu.Unlock()
		return
	}
	sess.state = StateClosed
	if current, ok := r.sessions[sess.id]; ok && current == sess {
		delete(r.sessions, sess.id)
	}
	if current, ok := r.pending[sess.id]; ok && current == sess {
		delete(r.pending, sess.id)
	}
	total := len(r.sessions)
	r.mu.Unlock()

	switch prev {
	case StateActive:
		r.observer.SessionClosed(time.Since(sess.createdAt))
		r.logger.Info("MCP session closed", "session_id", sess.id, "active_sessions", total)
	case StatePending:
		r.observer.SessionAbandoned()
		r.logger.Debug("MCP session abandoned before handshake", "session_id", sess.id)
	}
}

// Lookup returns the active session for id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	return sess, ok
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot lists active sessions, oldest first.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, Info{ID: sess.id, CreatedAt: sess.createdAt})
	}
	r.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return infos
}

// Shutdown stops accepting new sessions and closes every handler, active or
// pending. It returns when all handlers have closed or ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	handlers := make([]Handler, 0, len(r.sessions)+len(r.pending))
	for _, sess := range r.sessions {
		handlers = append(handlers, sess.handler)
	}
	for _, sess := range r.pending {
		if sess.handler != nil {
			handlers = append(handlers, sess.handler)
		}
	}
	r.mu.Unlock()

	if len(handlers) == 0 {
		return nil
	}
	r.logger.Info("closing MCP sessions", "count", len(handlers))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if err := h.Close(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("closing sessions: %w", ctx.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()              {}
func (nopObserver) SessionClosed(time.Duration) {}
func (nopObserver) SessionAbandoned()           {}
