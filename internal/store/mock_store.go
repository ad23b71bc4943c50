// ABOUTME: Mock LocationStore implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockStore is an in-memory LocationStore implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	locations map[string]*Location // keyed by normalized query

	// Err, when set, is returned by every method.
	Err error

	gets  int
	saves int
}

var _ LocationStore = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		locations: make(map[string]*Location),
	}
}

// GetLocation retrieves a location by query.
func (m *MockStore) GetLocation(_ context.Context, query string) (*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets++
	if m.Err != nil {
		return nil, m.Err
	}
	loc, ok := m.locations[query]
	if !ok {
		return nil, ErrNotFound
	}
	l := *loc
	return &l, nil
}

// SaveLocation stores a copy of loc.
func (m *MockStore) SaveLocation(_ context.Context, loc *Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++
	if m.Err != nil {
		return m.Err
	}
	if loc.Query == "" {
		return errors.New("location query is required")
	}
	l := *loc
	if l.ResolvedAt.IsZero() {
		l.ResolvedAt = time.Now()
	}
	m.locations[l.Query] = &l
	return nil
}

// PruneLocations deletes locations resolved before the given time.
func (m *MockStore) PruneLocations(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for query, loc := range m.locations {
		if loc.ResolvedAt.Before(before) {
			delete(m.locations, query)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Calls returns how many GetLocation and SaveLocation calls were made.
func (m *MockStore) Calls() (gets, saves int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets, m.saves
}
