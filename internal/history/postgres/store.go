// Package postgres provides a PostgreSQL-backed implementation of
// [history.Store] for installations that want correction history shared
// across machines or kept past local file rotation.
//
// All operations share a single [pgxpool.Pool]. [NewStore] runs the schema
// migration automatically via CREATE TABLE IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkbound/redline/internal/history"
)

var _ history.Store = (*Store)(nil)

const ddlCorrections = `
CREATE TABLE IF NOT EXISTS corrections (
    id          BIGSERIAL    PRIMARY KEY,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    original    TEXT         NOT NULL,
    corrected   TEXT         NOT NULL DEFAULT '',
    provider    TEXT         NOT NULL,
    model       TEXT         NOT NULL DEFAULT '',
    duration_ms BIGINT       NOT NULL DEFAULT 0,
    succeeded   BOOLEAN      NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_corrections_timestamp
    ON corrections (timestamp);
`

// Store is a PostgreSQL-backed correction history.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and ensures
// the corrections table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlCorrections); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Append implements [history.Store].
func (s *Store) Append(ctx context.Context, e history.Entry) error {
	const q = `
		INSERT INTO corrections
		    (timestamp, original, corrected, provider, model, duration_ms, succeeded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, q,
		e.Timestamp,
		e.Original,
		e.Corrected,
		e.Provider,
		e.Model,
		e.DurationMs,
		e.Succeeded,
	)
	if err != nil {
		return fmt.Errorf("history postgres: append: %w", err)
	}
	return nil
}

// Recent implements [history.Store]. Entries come back newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]history.Entry, error) {
	const q = `
		SELECT timestamp, original, corrected, provider, model, duration_ms, succeeded
		FROM   corrections
		ORDER  BY timestamp DESC, id DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("history postgres: recent: %w", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Entry, error) {
		var e history.Entry
		err := row.Scan(&e.Timestamp, &e.Original, &e.Corrected, &e.Provider, &e.Model, &e.DurationMs, &e.Succeeded)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("history postgres: scan: %w", err)
	}
	return entries, nil
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("history postgres: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
