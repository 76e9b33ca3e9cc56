package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
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
  size_bytes      BIGINT NOT NULL DEFAULT 0,
  object_key      TEXT NOT NULL,
  encrypted_url   TEXT NOT NULL,
  secret_findings INTEGER NOT NULL DEFAULT 0,
  created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evidence_room ON evidence_files (room_id, created_at);

CREATE TABLE IF NOT EXISTS evaluation_runs (
  id           TEXT PRIMARY KEY,
  room_id      TEXT NOT NULL,
  user_id      TEXT NOT NULL,
  kind         TEXT NOT NULL,
  success      BOOLEAN NOT NULL,
  message      TEXT NOT NULL,
  file_count   INTEGER NOT NULL DEFAULT 0,
  payload_json JSONB NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_room ON evaluation_runs (room_id, created_at);
`
