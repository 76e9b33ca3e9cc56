package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the tables when missing. Columns are never altered.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS evidence_files (
  id              VARCHAR(64)  NOT NULL PRIMARY KEY,
  room_id         VARCHAR(64)  NOT NULL,
  user_id         VARCHAR(128) NOT NULL,
  file_name       VARCHAR(512) NOT NULL,
  content_type    VARCHAR(255) NOT NULL,
  size_bytes      BIGINT       NOT NULL DEFAULT 0,
  object_key      VARCHAR(1024) NOT NULL,
  encrypted_url   TEXT         NOT NULL,
  secret_findings INT          NOT NULL DEFAULT 0,
  created_at      DATETIME(6)  NOT NULL,
  KEY idx_evidence_room (room_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS evaluation_runs (
  id           VARCHAR(64)  NOT NULL PRIMARY KEY,
  room_id      VARCHAR(64)  NOT NULL,
  user_id      VARCHAR(128) NOT NULL,
  kind         VARCHAR(32)  NOT NULL,
  success      TINYINT(1)   NOT NULL,
  message      TEXT         NOT NULL,
  file_count   INT          NOT NULL DEFAULT 0,
  payload_json JSON         NOT NULL,
  created_at   DATETIME(6)  NOT NULL,
  KEY idx_runs_room (room_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
