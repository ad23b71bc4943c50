// Package mcp implements the Model Context Protocol endpoint of the server.
//
// # Overview
//
// MCP clients talk to a single HTTP endpoint using the Streamable HTTP
// transport. The first request of a client is a JSON-RPC initialize call
// sent without a session id; the response carries a fresh id in the
// Mcp-Session-Id header, and every later request repeats it.
//
// # Routing
//
// The Router inspects each request on /mcp and either:
//
//   - resumes an existing session (header present and known)
//   - starts a new one (no header, POST body is an initialize request)
//   - rejects it (404 for unknown sessions, 400 for anything else without a session)
//
// It never removes sessions itself. Sessions leave the registry when their
// handler reports that it has closed.
//
// # Sessions
//
// HandlerFactory creates one go-sdk mcp.Server per session, connected to a
// StreamableServerTransport bound to the session id. A receiving middleware
// confirms the handshake to the registry when initialize succeeds, before the
// response reaches the client. DELETE /mcp closes the server session and only
// responds once the registry has dropped it.
//
// # Tools
//
// get_weather returns an embedded UI resource (ui://weather, text/uri-list)
// whose text is the widget URL for the requested city:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {"name": "get_weather", "arguments": {"city": "Boston"}},
//	  "id": 2
//	}
//
// The tool definition is built once and shared by all sessions.
//
// # Usage
//
//	tool, err := mcp.NewWeatherTool(publicURL + "/widget/weather")
//	factory, err := mcp.NewHandlerFactory(mcp.FactoryConfig{
//	    BaseContext: ctx,
//	    Name:        "Weather MCP UI",
//	    Tools:       []mcp.Tool{tool},
//	})
//	registry, err := session.NewRegistry(session.Config{Factory: factory})
//	router, err := mcp.NewRouter(mcp.Config{Registry: registry})
//	router.RegisterRoutes(mux)
package mcp
