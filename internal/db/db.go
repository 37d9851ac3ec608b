package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the slice of the pgx pool the cache store depends on.
type Pool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// Settings bounds the pool backing the persistent staleness cache. The
// daemon holds few connections: cache reads and write-throughs only, never
// user-driven query load.
type Settings struct {
	MaxConns       int32
	ConnectTimeout time.Duration
}

// Connect opens the cache store's connection pool and verifies the database
// answers before the engine starts serving.
func Connect(ctx context.Context, databaseURL string, settings Settings) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if settings.MaxConns > 0 {
		cfg.MaxConns = settings.MaxConns
	}
	if settings.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = settings.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create cache pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	return pool, nil
}
