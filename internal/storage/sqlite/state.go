// Package sqlite stores watermarks in a SQLite database through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"csvtap/internal/storage"
)

const ddl = `CREATE TABLE IF NOT EXISTS tap_state (
	stream        TEXT PRIMARY KEY,
	last_modified TEXT NOT NULL,
	updated_at    TEXT NOT NULL
)`

// Timestamps are stored as fixed-width UTC text so string comparison in SQL
// orders them chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// advanceSQL only replaces an existing watermark with a later one.
const advanceSQL = `INSERT INTO tap_state (stream, last_modified, updated_at) VALUES (?, ?, ?)
ON CONFLICT(stream) DO UPDATE SET
	last_modified = excluded.last_modified,
	updated_at    = excluded.updated_at
WHERE excluded.last_modified > tap_state.last_modified`

// Store is a SQLite StateStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func init() {
	storage.Register("sqlite", Open)
}

// Open opens (and if needed creates) the database at cfg.DSN.
func Open(ctx context.Context, cfg storage.Config) (storage.StateStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer at a time; concurrent tables serialize on the pool.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create tap_state: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, stream string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT last_modified FROM tap_state WHERE stream = ?`, stream).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: get %q: %w", stream, err)
	}
	t, err := parseSQLiteTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: get %q: %w", stream, err)
	}
	return t, true, nil
}

func (s *Store) Advance(ctx context.Context, stream string, t time.Time) error {
	if _, err := s.db.ExecContext(ctx, advanceSQL, stream, formatSQLiteTime(t), formatSQLiteTime(s.now())); err != nil {
		return fmt.Errorf("sqlite: advance %q: %w", stream, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseSQLiteTime accepts what formatSQLiteTime writes plus the common
// SQLite text forms; values without a zone are UTC.
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
