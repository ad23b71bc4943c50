// ABOUTME: SQLite implementation of the LocationStore interface using modernc.org/sqlite
// ABOUTME: Provides geocoding persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the LocationStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ LocationStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Readers block briefly instead of failing while the resolver writes
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS locations (
			query       TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			country     TEXT NOT NULL DEFAULT '',
			latitude    REAL NOT NULL,
			longitude   REAL NOT NULL,
			resolved_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_locations_resolved_at
			ON locations(resolved_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetLocation retrieves the location stored for the normalized query.
// Returns ErrNotFound if nothing has been stored.
func (s *SQLiteStore) GetLocation(ctx context.Context, query string) (*Location, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT query, name, country, latitude, longitude, resolved_at
		FROM locations
		WHERE query = ?
	`, query)

	var (
		loc        Location
		resolvedAt int64
	)
	err := row.Scan(&loc.Query, &loc.Name, &loc.Country, &loc.Latitude, &loc.Longitude, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying location: %w", err)
	}

	loc.ResolvedAt = time.UnixMilli(resolvedAt).UTC()
	return &loc, nil
}

// SaveLocation inserts the location or replaces the row for the same query.
func (s *SQLiteStore) SaveLocation(ctx context.Context, loc *Location) error {
	if loc.Query == "" {
		return errors.New("location query is required")
	}

	resolvedAt := loc.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (query, name, country, latitude, longitude, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			name = excluded.name,
			country = excluded.country,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			resolved_at = excluded.resolved_at
	`, loc.Query, loc.Name, loc.Country, loc.Latitude, loc.Longitude, resolvedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving location: %w", err)
	}
	return nil
}

// PruneLocations deletes locations resolved before the given time and
// returns how many were removed.
func (s *SQLiteStore) PruneLocations(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE resolved_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning locations: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned locations: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned stale locations", "count", n)
	}
	return n, nil
}
