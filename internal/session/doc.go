// Package session owns the lifecycle of MCP client sessions.
//
// # Overview
//
// Every MCP client performs an initialize handshake, receives a session id in
// the Mcp-Session-Id response header, and then sends further requests (POST
// messages, a long-lived GET stream, a DELETE to terminate) that must reach
// the same in-memory protocol handler. The Registry is the process-wide map
// from session id to that handler.
//
// # Lifecycle
//
// Sessions move forward through three states:
//
//	Pending ──Established──▶ Active ──Closed──▶ Closed
//	   └───────────────Closed──────────────────▶ Closed
//
// Create allocates a fresh id and asks the Factory for a handler, but the
// session is not visible to Lookup until the handler reports the handshake as
// complete through Hooks.Established. The handler reports its own end through
// Hooks.Closed, which removes the entry. Nothing else deletes sessions, so an
// entry disappears exactly when its handler stops, and a closed session can
// never be registered again.
//
// # Concurrency
//
// net/http serves requests on separate goroutines, so lookups from the
// resume path race with close notifications. All map mutations and state
// transitions happen under one mutex; once Hooks.Closed returns, no Lookup
// for that id succeeds.
//
// # Usage
//
//	registry, err := session.NewRegistry(session.Config{
//	    Factory: factory,
//	    Logger:  logger,
//	})
//	sess, err := registry.Create(ctx)
//	sess.Handler().ServeHTTP(w, r)
//
//	if sess, ok := registry.Lookup(id); ok {
//	    sess.Handler().ServeHTTP(w, r)
//	}
package session
