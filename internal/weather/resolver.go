// ABOUTME: Resolves city names to coordinates through memory, SQLite, then Open-Meteo.
// ABOUTME: Concurrent lookups for the same city share one upstream request.

package weather

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/2389/weather-mcp/internal/cache"
	"github.com/2389/weather-mcp/internal/store"
)

// Where a resolved location came from.
const (
	SourceCache    = "cache"
	SourceStore    = "store"
	SourceUpstream = "upstream"
)

// Geocoder resolves a city name to coordinates.
type Geocoder interface {
	ResolveCity(ctx context.Context, name string) (Coordinates, error)
}

// ResolveObserver is notified of every successful resolution.
type ResolveObserver interface {
	LocationResolved(source string)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	Geocoder Geocoder
	// Cache is the first tier. Required.
	Cache *cache.Cache[string, Coordinates]
	// Store is the optional second tier.
	Store store.LocationStore
	// StoreTTL bounds how old a stored location may be; zero means forever.
	StoreTTL time.Duration
	Clock    clockwork.Clock
	Observer ResolveObserver
	Logger   *slog.Logger
}

// Resolver looks up city coordinates with two cache tiers in front of the geocoder.
type Resolver struct {
	geocoder Geocoder
	cache    *cache.Cache[string, Coordinates]
	store    store.LocationStore
	storeTTL time.Duration
	clock    clockwork.Clock
	observer ResolveObserver
	logger   *slog.Logger
	group    singleflight.Group
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Geocoder == nil {
		return nil, errors.New("geocoder is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("cache is required")
	}

	r := &Resolver{
		geocoder: cfg.Geocoder,
		cache:    cfg.Cache,
		store:    cfg.Store,
		storeTTL: cfg.StoreTTL,
		clock:    cfg.Clock,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// NormalizeCity returns the cache key for a city name.
func NormalizeCity(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Resolve returns the coordinates for city. ErrCityNotFound is returned when
// the geocoder has no match; misses are not cached.
func (r *Resolver) Resolve(ctx context.Context, city string) (Coordinates, error) {
	key := NormalizeCity(city)
	if key == "" {
		return Coordinates{}, ErrCityNotFound
	}

	if coords, ok := r.cache.Get(key); ok {
		r.resolved(SourceCache)
		return coords, nil
	}

	// One caller's cancellation must not fail the others sharing the call.
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolveSlow(shared, key, city)
	})
	if err != nil {
		return Coordinates{}, err
	}
	return v.(Coordinates), nil
}

func (r *Resolver) resolveSlow(ctx context.Context, key, city string) (Coordinates, error) {
	if coords, ok := r.fromStore(ctx, key); ok {
		r.cache.Set(key, coords)
		r.resolved(SourceStore)
		return coords, nil
	}

	coords, err := r.geocoder.ResolveCity(ctx, city)
	if err != nil {
		return Coordinates{}, err
	}

	r.cache.Set(key, coords)
	r.toStore(ctx, key, coords)
	r.resolved(SourceUpstream)
	return coords, nil
}

// fromStore returns a stored location that is still fresh.
func (r *Resolver) fromStore(ctx context.Context, key string) (Coordinates, bool) {
	if r.store == nil {
		return Coordinates{}, false
	}

	loc, err := r.store.GetLocation(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("reading stored location", "city", key, "error", err)
		}
		return Coordinates{}, false
	}
	if r.storeTTL > 0 && r.clock.Since(loc.ResolvedAt) >= r.storeTTL {
		return Coordinates{}, false
	}

	return Coordinates{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Name:      loc.Name,
		Country:   loc.Country,
	}, true
}

// toStore persists a fresh resolution. Failures are logged, not returned.
func (r *Resolver) toStore(ctx context.Context, key string, coords Coordinates) {
	if r.store == nil {
		return
	}

	err := r.store.SaveLocation(ctx, &store.Location{
		Query:      key,
		Name:       coords.Name,
		Country:    coords.Country,
		Latitude:   coords.Latitude,
		Longitude:  coords.Longitude,
		ResolvedAt: r.clock.Now(),
	})
	if err != nil {
		r.logger.Warn("saving location", "city", key, "error", err)
	}
}

func (r *Resolver) resolved(source string) {
	if r.observer != nil {
		r.observer.LocationResolved(source)
	}
}
