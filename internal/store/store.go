// ABOUTME: Store interface and data types for weather-mcp persistence
// ABOUTME: Defines the Location record and the LocationStore interface for resolved cities

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Location is a geocoded city, keyed by the normalized query that produced it
type Location struct {
	Query      string // normalized city query (lowercased, trimmed)
	Name       string // display name returned by the geocoder
	Country    string // may be empty
	Latitude   float64
	Longitude  float64
	ResolvedAt time.Time
}

// LocationStore persists geocoding results across restarts
type LocationStore interface {
	// GetLocation returns the location stored for query, or ErrNotFound.
	GetLocation(ctx context.Context, query string) (*Location, error)
	// SaveLocation inserts or replaces the location for loc.Query.
	SaveLocation(ctx context.Context, loc *Location) error
	// PruneLocations deletes locations resolved before the given time.
	PruneLocations(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
