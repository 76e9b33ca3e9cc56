package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evaluation"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save inserts or updates an evaluation run
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	const q = `
INSERT INTO evaluation_runs
  (id, room_id, user_id, kind, success, message, file_count, payload_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  success=EXCLUDED.success,
  message=EXCLUDED.message,
  payload_json=EXCLUDED.payload_json;
`
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		run.ID, run.RoomID, stringOrDash(run.UserID), string(run.Kind), run.Success,
		run.Message, run.FileCount, jsonOrEmpty(run.Payload), createdAt,
	)
	return err
}

// Paginate returns a page of runs ordered by created_at desc
func (r *RunRepository) Paginate(ctx context.Context, room string, page, pageSize int) ([]*domain.Run, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, room_id, user_id, kind, success, message, file_count, payload_json::text, created_at
FROM evaluation_runs
WHERE room_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.QueryContext(ctx, q, room, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		var run domain.Run
		if err := rows.Scan(&run.ID, &run.RoomID, &run.UserID, &run.Kind, &run.Success,
			&run.Message, &run.FileCount, &run.Payload, &run.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}
