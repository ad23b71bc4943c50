// Package weather serves the weather widget that get_weather points MCP hosts at.
//
// A request for /widget/weather?city=Boston flows through three parts:
//
//   - Resolver turns the city into coordinates, checking an in-memory cache,
//     then the optional SQLite store, then the Open-Meteo geocoding API.
//     Concurrent misses for the same city share one upstream call.
//   - Client fetches current conditions and a four-day forecast.
//   - Renderer fills the embedded HTML template with the current temperature
//     and three daily cards.
//
// Weather codes map to icons by first match over fixed code sets. Codes
// outside every set render as UnknownCondition and are logged.
//
// Handler answers 400 without a city, 404 when geocoding finds nothing, and
// 502 when Open-Meteo fails; each of those still returns an HTML fragment.
package weather
