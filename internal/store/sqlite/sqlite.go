// Package sqlite persists open positions and the trade history in SQLite.
//
// One database file holds both tables. The connection pool is pinned to a
// single connection, so every write is serialized by database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is an open trading database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path with WAL journaling and
// applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite database opened", "path", path)
	return &DB{db: db}, nil
}

// SQL returns the underlying sql.DB for health checks.
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			symbol            TEXT    PRIMARY KEY,
			direction         TEXT    NOT NULL,
			entry_price       REAL    NOT NULL,
			shares            INTEGER NOT NULL,
			entry_time        INTEGER NOT NULL,
			extreme_price     REAL    NOT NULL,
			trailing_stop_pct REAL    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trades (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT    NOT NULL UNIQUE,
			action        TEXT    NOT NULL,
			direction     TEXT    NOT NULL,
			symbol        TEXT    NOT NULL,
			price         REAL    NOT NULL,
			shares        INTEGER NOT NULL,
			ts            INTEGER NOT NULL,
			balance_after REAL    NOT NULL,
			holding_days  REAL    NOT NULL DEFAULT 0,
			profit_loss   REAL    NOT NULL DEFAULT 0,
			reason        TEXT    NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, seq);
		CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
	`)
	return err
}

// Timestamps are stored as Unix nanoseconds in UTC.
func toNanos(t time.Time) int64   { return t.UTC().UnixNano() }
func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
