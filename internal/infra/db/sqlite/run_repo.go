package sqlite

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evaluation"
)

type RunRepository struct{ db *sql.DB }

func NewRunRepository(db *sql.DB) *RunRepository { return &RunRepository{db: db} }

func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	const q = `
INSERT INTO evaluation_runs
  (id, room_id, user_id, kind, success, message, file_count, payload_json, created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET
  success=excluded.success,
  message=excluded.message,
  payload_json=excluded.payload_json;
`
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	success := 0
	if run.Success {
		success = 1
	}
	_, err := r.db.ExecContext(ctx, q,
		string(run.ID), run.RoomID, stringOrDash(run.UserID), string(run.Kind), success,
		run.Message, run.FileCount, jsonOrEmpty(run.Payload), createdAt.UnixNano(),
	)
	return err
}

func (r *RunRepository) Paginate(ctx context.Context, room string, page, pageSize int) ([]*domain.Run, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, room_id, user_id, kind, success, message, file_count, payload_json, created_at
FROM evaluation_runs
WHERE room_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, room, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		var (
			run     domain.Run
			id      string
			kind    string
			success int64
			created int64
		)
		if err := rows.Scan(&id, &run.RoomID, &run.UserID, &kind, &success,
			&run.Message, &run.FileCount, &run.Payload, &created); err != nil {
			return nil, err
		}
		run.ID = domain.RunID(id)
		run.Kind = domain.Kind(kind)
		run.Success = success != 0
		run.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, &run)
	}
	return out, rows.Err()
}
