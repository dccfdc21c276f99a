// SPDX-License-Identifier: MIT

// Package store is the durable metadata store for rooms, recordings and
// room membership, backed by PostgreSQL via pgx. State updates are
// conditional at row granularity so the single-writer state machines in the
// application core cannot race against stale reads.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/log"
)

// Store holds a single pgx connection pool shared by all repositories.
// All operations are safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New establishes the connection pool, verifies connectivity and ensures the
// schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: log.WithComponent("store"),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
