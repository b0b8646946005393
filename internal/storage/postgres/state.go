// Package postgres stores watermarks in a PostgreSQL table through pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvtap/internal/storage"
)

const ddl = `CREATE TABLE IF NOT EXISTS public.tap_state (
	stream        TEXT PRIMARY KEY,
	last_modified TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const getSQL = `SELECT last_modified FROM public.tap_state WHERE stream = $1`

// advanceSQL keeps the later of the stored and proposed watermark.
const advanceSQL = `INSERT INTO public.tap_state (stream, last_modified, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (stream) DO UPDATE SET
	last_modified = GREATEST(public.tap_state.last_modified, EXCLUDED.last_modified),
	updated_at    = now()`

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a Postgres StateStore.
type Store struct {
	db    querier
	close func()
}

func init() {
	storage.Register("postgres", Open)
}

// Open connects with cfg.DSN and ensures the state table exists.
func Open(ctx context.Context, cfg storage.Config) (storage.StateStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	st, err := newStore(ctx, pool, pool.Close)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

func newStore(ctx context.Context, db querier, closeFn func()) (*Store, error) {
	if _, err := db.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("postgres: create tap_state: %w", err)
	}
	return &Store{db: db, close: closeFn}, nil
}

func (s *Store) Get(ctx context.Context, stream string) (time.Time, bool, error) {
	var t time.Time
	err := s.db.QueryRow(ctx, getSQL, stream).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("postgres: get %q: %w", stream, err)
	}
	return t.UTC(), true, nil
}

func (s *Store) Advance(ctx context.Context, stream string, t time.Time) error {
	if _, err := s.db.Exec(ctx, advanceSQL, stream, t.UTC()); err != nil {
		return fmt.Errorf("postgres: advance %q: %w", stream, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
