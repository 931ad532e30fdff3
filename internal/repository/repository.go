// Package repository is the durable tier of the credential engine:
// users, API tokens and the append-only usage log live in PostgreSQL.
// The Redis cache is only ever a projection of these rows; whenever
// the two disagree, this package is the source of truth.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository wraps a pgx connection pool behind typed query methods.
// Safe for concurrent use.
type Repository struct {
	pool *pgxpool.Pool
}

// New opens a connection pool and verifies it with a ping before
// returning. Validation traffic only reaches the database on cache
// misses, so the pool stays small: what gets through is short
// single-row hash lookups plus the per-request usage-log insert.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Ping reports whether the database is reachable. Backs the readiness
// probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool. Registered as a shutdown hook in cmd/api.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool exposes the underlying pool for the integration-test helpers
// (advisory locks, schema resets). Application code goes through the
// typed methods instead.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}
