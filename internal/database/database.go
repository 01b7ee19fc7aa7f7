// Package database manages the PostgreSQL connection pool and
// bootstraps the schema on startup.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool. All stores share this single pool;
// statements are short-lived and independently committed, so concurrent
// connections never block each other beyond normal pool contention.
type DB struct {
	Pool *pgxpool.Pool
}

// Open connects to PostgreSQL, verifies the connection, and bootstraps
// the schema. The returned DB must be closed during graceful shutdown.
func Open(ctx context.Context, connString string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: bootstrap schema: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool. Call this during graceful shutdown.
func (db *DB) Close() {
	db.Pool.Close()
}
