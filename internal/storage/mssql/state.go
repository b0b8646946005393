// Package mssql stores watermarks in a SQL Server table through
// database/sql and the go-mssqldb "sqlserver" driver.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"csvtap/internal/storage"
)

const ddl = `IF OBJECT_ID(N'dbo.tap_state', N'U') IS NULL
CREATE TABLE dbo.tap_state (
	stream        NVARCHAR(400) NOT NULL PRIMARY KEY,
	last_modified DATETIME2(7)  NOT NULL,
	updated_at    DATETIME2(7)  NOT NULL
)`

const getSQL = `SELECT last_modified FROM dbo.tap_state WHERE stream = @p1`

// advanceSQL upserts under HOLDLOCK so concurrent writers for one stream
// serialize; the stored value only moves forward.
const advanceSQL = `MERGE dbo.tap_state WITH (HOLDLOCK) AS t
USING (SELECT @p1 AS stream, @p2 AS last_modified, @p3 AS updated_at) AS s
ON t.stream = s.stream
WHEN MATCHED AND s.last_modified > t.last_modified THEN
	UPDATE SET last_modified = s.last_modified, updated_at = s.updated_at
WHEN NOT MATCHED THEN
	INSERT (stream, last_modified, updated_at) VALUES (s.stream, s.last_modified, s.updated_at);`

// dbConn is the subset of *sql.DB the store uses.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

// Store is a SQL Server StateStore.
type Store struct {
	db  dbConn
	now func() time.Time
}

func init() {
	storage.Register("mssql", Open)
}

// Open connects with cfg.DSN (a sqlserver:// URL) and ensures the state
// table exists.
func Open(ctx context.Context, cfg storage.Config) (storage.StateStore, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: create tap_state: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, stream string) (time.Time, bool, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, getSQL, stream).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("mssql: get %q: %w", stream, err)
	}
	// DATETIME2 carries no zone; values are written in UTC.
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), true, nil
}

func (s *Store) Advance(ctx context.Context, stream string, t time.Time) error {
	if _, err := s.db.ExecContext(ctx, advanceSQL, stream, utcWallClock(t), utcWallClock(s.now())); err != nil {
		return fmt.Errorf("mssql: advance %q: %w", stream, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// utcWallClock converts t to UTC so the zone-less DATETIME2 column holds UTC
// wall-clock time.
func utcWallClock(t time.Time) time.Time {
	return t.UTC()
}
