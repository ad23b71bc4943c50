// ABOUTME: Session type and the handler contract the registry manages.
// ABOUTME: Defines the forward-only Pending -> Active -> Closed state machine.

package session

import (
	"context"
	"net/http"
	"time"
)

// State is the lifecycle state of a session.
type State int

const (
	// StatePending means the handler exists but the handshake is not confirmed.
	StatePending State = iota
	// StateActive means the session is registered and reachable by id.
	StateActive
	// StateClosed means the handler has ended; the id is retired.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler is the per-session protocol endpoint. It serves every HTTP request
// routed to its session and is exclusively owned by that session.
type Handler interface {
	http.Handler
	// Close terminates the session. It must eventually cause Hooks.Closed to fire
	// and must be safe to call more than once.
	Close() error
}

// Hooks are the callbacks a Handler uses to report lifecycle events back to
// the registry. Both are safe to call from any goroutine and more than once.
type Hooks struct {
	// Established commits the session once the handshake has completed for the
	// given id. An id other than the one the handler was built for is ignored.
	Established func(id string)
	// Closed retires the session once the handler has stopped.
	Closed func()
}

// Factory builds the protocol handler for a freshly allocated session id.
type Factory interface {
	NewHandler(ctx context.Context, id string, hooks Hooks) (Handler, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, id string, hooks Hooks) (Handler, error)

// NewHandler implements Factory.
func (f FactoryFunc) NewHandler(ctx context.Context, id string, hooks Hooks) (Handler, error) {
	return f(ctx, id, hooks)
}

// Session binds one id to one Handler.
// State is guarded by the owning Registry's mutex.
type Session struct {
	id        string
	handler   Handler
	state     State
	createdAt time.Time
	registry  *Registry
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Handler returns the protocol handler owned by this session.
func (s *Session) Handler() Handler {
	return s.handler
}

// CreatedAt returns when the session was allocated.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	return s.state
}

// Info is a point-in-time description of an active session.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Observer receives session lifecycle events. Implementations must not block.
type Observer interface {
	SessionOpened()
	SessionClosed(lifetime time.Duration)
	SessionAbandoned()
}
