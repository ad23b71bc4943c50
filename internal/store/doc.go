// Package store provides persistent storage for resolved city locations using SQLite.
//
// # Architecture
//
// LocationStore is the single interface. SQLiteStore implements it on
// modernc.org/sqlite (pure Go, no cgo); MockStore is an in-memory version for
// tests.
//
// The store is the second cache tier of the weather resolver: geocoding results
// survive restarts, so a city is looked up upstream only once per retention
// window.
//
// # Schema
//
//	locations(query PRIMARY KEY, name, country, latitude, longitude, resolved_at)
//
// query is the normalized city name. resolved_at is stored as Unix milliseconds
// so pruning is a plain integer comparison.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/weather-mcp/weather.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	loc, err := s.GetLocation(ctx, "boston")
//	if errors.Is(err, store.ErrNotFound) {
//	    // resolve upstream, then s.SaveLocation(ctx, loc)
//	}
package store
