package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/campusfeed/syncd/internal/db"
)

// PostgresStore implements Store against a PostgreSQL table, letting cached
// views survive daemon restarts within a session.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore constructs a cache store backed by PostgreSQL.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the backing table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS sync_cache (
            key        TEXT PRIMARY KEY,
            value      JSONB NOT NULL,
            fetched_at TIMESTAMPTZ NOT NULL
        )
    `)
	if err != nil {
		return fmt.Errorf("ensure sync_cache table: %w", err)
	}

	return nil
}

// Get retrieves the raw entry under key.
func (s *PostgresStore) Get(ctx context.Context, key string) (RawEntry, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return RawEntry{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT value, fetched_at
        FROM sync_cache
        WHERE key = $1
    `, key)

	var entry RawEntry
	if err := row.Scan(&entry.Value, &entry.FetchedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RawEntry{}, ErrMiss
		}
		return RawEntry{}, fmt.Errorf("select cache entry: %w", err)
	}

	return entry, nil
}

// Set upserts the entry under key. The row is replaced whole, so readers
// never see a value paired with another write's timestamp.
func (s *PostgresStore) Set(ctx context.Context, key string, entry RawEntry) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO sync_cache (key, value, fetched_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE
        SET value = EXCLUDED.value, fetched_at = EXCLUDED.fetched_at
    `, key, entry.Value, entry.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}

	return nil
}

// Delete removes the entry under key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM sync_cache WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}

	return nil
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
