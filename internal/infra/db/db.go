// Package db picks the relational backend from configuration.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/automaton-evidence/internal/domain/evaluation"
	"github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/db/mysql"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/db/sqlite"
)

// Store bundles an open database with its repositories.
type Store struct {
	DB       *sql.DB
	Driver   string
	Evidence evidence.Repository
	Runs     evaluation.RunRepository
}

// Open connects with driver (mysql, postgres or sqlite) and ensures the
// schema exists.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		conn *sql.DB
		err  error
	)
	s := &Store{Driver: driver}
	switch driver {
	case "mysql":
		if conn, err = mysql.Connect(ctx, dsn); err == nil {
			s.Evidence, s.Runs = mysql.NewEvidenceRepository(conn), mysql.NewRunRepository(conn)
		}
	case "postgres":
		if conn, err = postgres.Connect(ctx, dsn); err == nil {
			s.Evidence, s.Runs = postgres.NewEvidenceRepository(conn), postgres.NewRunRepository(conn)
		}
	case "sqlite":
		if conn, err = sqlite.Connect(ctx, dsn); err == nil {
			s.Evidence, s.Runs = sqlite.NewEvidenceRepository(conn), sqlite.NewRunRepository(conn)
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", driver, err)
	}
	s.DB = conn
	return s, nil
}

// Check pings the database; it satisfies the health checker contract.
func (s *Store) Check(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Store) Close() error { return s.DB.Close() }
