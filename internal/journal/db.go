// Package journal keeps a SQLite history of sync runs.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	project       TEXT NOT NULL,
	step          TEXT NOT NULL,
	detected      TEXT NOT NULL DEFAULT '',
	direction     TEXT NOT NULL DEFAULT '',
	success       INTEGER NOT NULL DEFAULT 0,
	fields_synced INTEGER NOT NULL DEFAULT 0,
	synced_fields TEXT NOT NULL DEFAULT '[]',
	orphaned      TEXT NOT NULL DEFAULT '[]',
	warnings      TEXT NOT NULL DEFAULT '[]',
	error         TEXT NOT NULL DEFAULT '',
	resolution    TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_project ON sync_runs(project, created_at);

CREATE TABLE IF NOT EXISTS step_latest (
	project    TEXT NOT NULL,
	step       TEXT NOT NULL,
	run_id     INTEGER NOT NULL,
	PRIMARY KEY (project, step)
);
`

// DB wraps a sql.DB with journal operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: init fts: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
