// Package sqlite stores evidence metadata in a local SQLite file. It backs
// single-user desktop installs and the repository tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DefaultDSN is used when no DSN is configured.
const DefaultDSN = "file:evidence.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps SQLITE_BUSY away
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS evidence_files (
  id              TEXT PRIMARY KEY,
  room_id         TEXT NOT NULL,
  user_id         TEXT NOT NULL,
  file_name       TEXT NOT NULL,
  content_type    TEXT NOT NULL,
  size_bytes      INTEGER NOT NULL DEFAULT 0,
  object_key      TEXT NOT NULL,
  encrypted_url   TEXT NOT NULL,
  secret_findings INTEGER NOT NULL DEFAULT 0,
  created_at      INTEGER NOT NULL -- unix nanos
);
CREATE INDEX IF NOT EXISTS idx_evidence_room ON evidence_files (room_id, created_at);

CREATE TABLE IF NOT EXISTS evaluation_runs (
  id           TEXT PRIMARY KEY,
  room_id      TEXT NOT NULL,
  user_id      TEXT NOT NULL,
  kind         TEXT NOT NULL,
  success      INTEGER NOT NULL,
  message      TEXT NOT NULL,
  file_count   INTEGER NOT NULL DEFAULT 0,
  payload_json TEXT NOT NULL,
  created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_room ON evaluation_runs (room_id, created_at);
`
