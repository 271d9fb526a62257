// Package pgstore keeps the historical delivery graph in PostgreSQL. Node roles
// live in separate tables so a destination id never satisfies a source check.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/model"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/core/observability"
	"github.com/mohammed-shakir/h3-delivery-eta/internal/graph"
)

const backend = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS source_nodes (
	hex_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS destination_nodes (
	hex_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS delivery_edges (
	source_hex_id      TEXT NOT NULL REFERENCES source_nodes (hex_id),
	destination_hex_id TEXT NOT NULL REFERENCES destination_nodes (hex_id),
	duration           DOUBLE PRECISION NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source_hex_id, destination_hex_id)
);`

const uniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

var _ graph.Store = (*Store)(nil)

// New connects, pings and applies the schema.
func New(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open pool: %w", model.ErrStoreUnavailable, err)
	}
	s := &Store{db: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %w", model.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.db.Ping(ctx)
	observability.ObserveGraphOp(backend, "ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: postgres ping: %w", model.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Lookup(ctx context.Context, pair model.LocationPair) (float64, bool, error) {
	const query = `
		SELECT duration
		FROM delivery_edges
		WHERE source_hex_id = $1 AND destination_hex_id = $2`

	start := time.Now()
	var d float64
	err := s.db.QueryRow(ctx, query, string(pair.Source), string(pair.Destination)).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		observability.ObserveGraphOp(backend, "lookup", nil, time.Since(start).Seconds())
		return 0, false, nil
	}
	observability.ObserveGraphOp(backend, "lookup", err, time.Since(start).Seconds())
	if err != nil {
		return 0, false, fmt.Errorf("%w: lookup %s: %w", model.ErrStoreUnavailable, pair, err)
	}
	return d, true, nil
}

func (s *Store) UpdateEdge(ctx context.Context, pair model.LocationPair, duration float64) error {
	const query = `
		UPDATE delivery_edges
		SET duration = $3, updated_at = now()
		WHERE source_hex_id = $1 AND destination_hex_id = $2`

	start := time.Now()
	tag, err := s.db.Exec(ctx, query, string(pair.Source), string(pair.Destination), duration)
	observability.ObserveGraphOp(backend, "update_edge", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", model.ErrStoreUnavailable, pair, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", pair, model.ErrEdgeNotFound)
	}
	return nil
}

func (s *Store) CreateEdge(ctx context.Context, pair model.LocationPair, duration float64) error {
	start := time.Now()
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM source_nodes WHERE hex_id = $1 FOR SHARE`,
			string(pair.Source),
		).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrSourceNodeMissing
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO destination_nodes (hex_id) VALUES ($1) ON CONFLICT DO NOTHING`,
			string(pair.Destination),
		); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO delivery_edges (source_hex_id, destination_hex_id, duration)
			VALUES ($1, $2, $3)
			ON CONFLICT (source_hex_id, destination_hex_id) DO NOTHING`,
			string(pair.Source), string(pair.Destination), duration,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.ErrEdgeExists
		}
		return nil
	})

	switch {
	case err == nil:
		observability.ObserveGraphOp(backend, "create_edge", nil, time.Since(start).Seconds())
		return nil
	case errors.Is(err, model.ErrSourceNodeMissing), errors.Is(err, model.ErrEdgeExists):
		observability.ObserveGraphOp(backend, "create_edge", nil, time.Since(start).Seconds())
		return fmt.Errorf("create %s: %w", pair, err)
	case isUniqueViolation(err):
		observability.ObserveGraphOp(backend, "create_edge", nil, time.Since(start).Seconds())
		return fmt.Errorf("create %s: %w", pair, model.ErrEdgeExists)
	default:
		observability.ObserveGraphOp(backend, "create_edge", err, time.Since(start).Seconds())
		return fmt.Errorf("%w: create %s: %w", model.ErrStoreUnavailable, pair, err)
	}
}

func (s *Store) SeedSource(ctx context.Context, cell model.SpatialCell) error {
	start := time.Now()
	_, err := s.db.Exec(ctx,
		`INSERT INTO source_nodes (hex_id) VALUES ($1) ON CONFLICT DO NOTHING`,
		string(cell),
	)
	observability.ObserveGraphOp(backend, "seed_source", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: seed source %q: %w", model.ErrStoreUnavailable, cell, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
