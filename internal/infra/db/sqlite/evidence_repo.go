package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
)

type EvidenceRepository struct{ db *sql.DB }

func NewEvidenceRepository(db *sql.DB) *EvidenceRepository { return &EvidenceRepository{db: db} }

const evidenceColumns = `id, room_id, user_id, file_name, content_type, size_bytes,
       object_key, encrypted_url, secret_findings, created_at`

func (r *EvidenceRepository) Save(ctx context.Context, f *domain.File) error {
	const q = `
INSERT INTO evidence_files
(id, room_id, user_id, file_name, content_type, size_bytes,
 object_key, encrypted_url, secret_findings, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET
 file_name = excluded.file_name,
 content_type = excluded.content_type,
 size_bytes = excluded.size_bytes,
 object_key = excluded.object_key,
 encrypted_url = excluded.encrypted_url,
 secret_findings = excluded.secret_findings;`

	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		string(f.ID), f.RoomID, stringOrDash(f.UserID), stringOrDash(f.FileName), stringOrDash(f.ContentType), f.Size,
		f.ObjectKey, f.EncryptedURL, f.Findings, created.UnixNano(),
	)
	return err
}

func (r *EvidenceRepository) Get(ctx context.Context, room string, id domain.FileID) (*domain.File, error) {
	q := `SELECT ` + evidenceColumns + ` FROM evidence_files WHERE room_id=? AND id=? LIMIT 1;`
	f, err := scanFile(r.db.QueryRowContext(ctx, q, room, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return f, err
}

func (r *EvidenceRepository) ListByRoom(ctx context.Context, room string, limit int) ([]*domain.File, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + evidenceColumns + ` FROM evidence_files WHERE room_id=? ORDER BY created_at DESC, id DESC LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, room, limit)
	if err != nil {
		return nil, err
	}
	return collectFiles(rows)
}

func (r *EvidenceRepository) ListAll(ctx context.Context, afterID domain.FileID, limit int) ([]*domain.File, error) {
	if limit <= 0 {
		limit = 500
	}
	q := `SELECT ` + evidenceColumns + ` FROM evidence_files WHERE id > ? ORDER BY id ASC LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, string(afterID), limit)
	if err != nil {
		return nil, err
	}
	return collectFiles(rows)
}

func (r *EvidenceRepository) UpdateURL(ctx context.Context, id domain.FileID, encryptedURL string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE evidence_files SET encrypted_url=? WHERE id=?;`, encryptedURL, string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*domain.File, error) {
	var (
		f       domain.File
		id      string
		created int64
	)
	if err := row.Scan(
		&id, &f.RoomID, &f.UserID, &f.FileName, &f.ContentType, &f.Size,
		&f.ObjectKey, &f.EncryptedURL, &f.Findings, &created,
	); err != nil {
		return nil, err
	}
	f.ID = domain.FileID(id)
	f.CreatedAt = time.Unix(0, created).UTC()
	return &f, nil
}

func collectFiles(rows *sql.Rows) ([]*domain.File, error) {
	defer rows.Close()
	var out []*domain.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func jsonOrEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	if !json.Valid([]byte(s)) {
		b, _ := json.Marshal(map[string]string{"raw": s})
		return string(b)
	}
	return s
}
