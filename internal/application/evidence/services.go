package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-evidence/internal/application"
	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
	"github.com/bryanwahyu/automaton-evidence/internal/domain/session"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/screening"
)

// DefaultMaxBytes caps a single upload when MaxBytes is not set.
const DefaultMaxBytes = 50 << 20

// DefaultMaxRoomFiles caps a whole-room selection when MaxRoomFiles is not set.
const DefaultMaxRoomFiles = 1000

// Service implements use-cases untuk evidence files.
// Safe for concurrent use once configured.
type Service struct {
	Repo          domain.Repository
	Blobs         domain.BlobStore
	URLs          domain.URLCodec
	Clock         application.Clock
	KeyScheme     domain.KeyScheme
	MaxBytes      int64
	MaxRoomFiles  int
	RejectSecrets bool
}

// Authorize checks that sess may act on room.
func Authorize(sess *session.Session, room string, clock application.Clock) error {
	if err := sess.Validate(clock.Now()); err != nil {
		return err
	}
	if !sess.CanAccess(room) {
		return session.ErrRoomMismatch
	}
	return nil
}

// Upload stores one file: blob first, then the row with the encrypted URL.
func (s *Service) Upload(ctx context.Context, sess *session.Session, room string, in domain.UploadInput) (*domain.UploadResult, error) {
	if err := Authorize(sess, room, s.Clock); err != nil {
		return nil, err
	}

	data, err := s.read(in)
	if err != nil {
		return nil, err
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	report := screening.Scan(contentType, data)
	if s.RejectSecrets && report.Blocking() {
		titles := make([]string, 0, len(report.Findings))
		for _, f := range report.Findings {
			titles = append(titles, f.Title)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrSecretsFound, strings.Join(titles, ", "))
	}

	id := domain.FileID(uuid.NewString())
	key := ObjectKey(s.KeyScheme, room, id, in.Name)

	stable, err := s.Blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", in.Name, err)
	}

	// exactly one encryption before the row is written
	stored := stable
	if !s.URLs.IsEncrypted(stored) {
		if stored, err = s.URLs.Encrypt(stable); err != nil {
			return nil, fmt.Errorf("encrypt url for %s: %w", in.Name, err)
		}
	}

	now := s.Clock.Now().UTC()
	file := &domain.File{
		ID:           id,
		RoomID:       room,
		UserID:       sess.UserID,
		FileName:     in.Name,
		ContentType:  contentType,
		Size:         int64(len(data)),
		ObjectKey:    key,
		EncryptedURL: stored,
		Findings:     len(report.Findings),
		CreatedAt:    now,
	}
	if err := s.Repo.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("save %s: %w", in.Name, err)
	}

	return &domain.UploadResult{
		FileID:         id,
		RoomID:         room,
		FileName:       in.Name,
		ContentType:    contentType,
		Size:           file.Size,
		ObjectKey:      key,
		URL:            s.accessURL(ctx, key, stable),
		SecretFindings: len(report.Findings),
		UploadedAt:     now,
	}, nil
}

// UploadMultipleFiles uploads every file independently. A failing file is
// logged and recorded in its outcome; the remaining files still upload.
func (s *Service) UploadMultipleFiles(ctx context.Context, sess *session.Session, room string, files []domain.UploadInput) []domain.UploadOutcome {
	out := make([]domain.UploadOutcome, 0, len(files))
	for _, f := range files {
		res, err := s.Upload(ctx, sess, room, f)
		if err != nil {
			zap.L().Warn("evidence upload failed",
				zap.String("room", room),
				zap.String("file", f.Name),
				zap.Error(err))
			out = append(out, domain.UploadOutcome{Item: f.Name, Err: err})
			continue
		}
		out = append(out, domain.UploadOutcome{Item: f.Name, Result: res})
	}
	return out
}

// Succeeded returns only the uploaded results, in input order.
func Succeeded(outcomes []domain.UploadOutcome) []domain.UploadResult {
	out := make([]domain.UploadResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Result != nil {
			out = append(out, *o.Result)
		}
	}
	return out
}

// OutcomesErr aggregates the failed items, nil when all uploaded.
func OutcomesErr(outcomes []domain.UploadOutcome) error {
	var merr *multierror.Error
	for _, o := range outcomes {
		if o.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", o.Item, o.Err))
		}
	}
	return merr.ErrorOrNil()
}

// List returns the room's files, newest first.
func (s *Service) List(ctx context.Context, sess *session.Session, room string, limit int) ([]*domain.File, error) {
	if err := Authorize(sess, room, s.Clock); err != nil {
		return nil, err
	}
	return s.Repo.ListByRoom(ctx, room, limit)
}

// References returns encrypted references for ids, or for every file in
// the room when ids is empty. Each URL is freshly issued by the blob store
// so expiring links are valid when the evaluation client decrypts them.
func (s *Service) References(ctx context.Context, sess *session.Session, room string, ids []string) ([]domain.FileReference, error) {
	if err := Authorize(sess, room, s.Clock); err != nil {
		return nil, err
	}

	var files []*domain.File
	if len(ids) == 0 {
		limit := s.MaxRoomFiles
		if limit <= 0 {
			limit = DefaultMaxRoomFiles
		}
		all, err := s.Repo.ListByRoom(ctx, room, limit+1)
		if err != nil {
			return nil, err
		}
		if len(all) > limit {
			return nil, fmt.Errorf("%w: more than %d, select file_ids", domain.ErrTooManyFiles, limit)
		}
		files = all
	} else {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			f, err := s.Repo.Get(ctx, room, domain.FileID(id))
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}

	refs := make([]domain.FileReference, 0, len(files))
	for _, f := range files {
		ref, err := s.reference(ctx, f)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// reference re-issues the file's URL from its object key. Rows without a
// key, or a store that cannot sign, fall back to the stored URL.
func (s *Service) reference(ctx context.Context, f *domain.File) (domain.FileReference, error) {
	if f.ObjectKey == "" {
		return f.Reference(), nil
	}
	fresh, err := s.Blobs.URL(ctx, f.ObjectKey)
	if err != nil {
		zap.L().Warn("cannot issue blob url, using stored url",
			zap.String("file_id", string(f.ID)),
			zap.Error(err))
		return f.Reference(), nil
	}
	enc, err := s.URLs.Encrypt(fresh)
	if err != nil {
		return domain.FileReference{}, fmt.Errorf("encrypt url for %s: %w", f.ID, err)
	}
	return domain.FileReference{FileID: string(f.ID), URL: enc}, nil
}

// accessURL is what the uploader gets back: a fetchable URL, or the stable
// one when the store cannot issue it.
func (s *Service) accessURL(ctx context.Context, key, stable string) string {
	u, err := s.Blobs.URL(ctx, key)
	if err != nil {
		zap.L().Warn("cannot issue blob url", zap.String("key", key), zap.Error(err))
		return stable
	}
	return u
}

func (s *Service) read(in domain.UploadInput) ([]byte, error) {
	if in.Open == nil {
		return nil, fmt.Errorf("%s: no content", in.Name)
	}
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if in.Size > limit {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrTooLarge, in.Size)
	}
	rc, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", in.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", domain.ErrTooLarge, limit)
	}
	return data, nil
}

// ObjectKey lays out the bucket key for a new file.
func ObjectKey(scheme domain.KeyScheme, room string, id domain.FileID, name string) string {
	if scheme == domain.KeySchemeLegacy {
		return fmt.Sprintf("%s/%s-%s", room, id, safeName(name))
	}
	return fmt.Sprintf("%s/%s", room, id)
}

func safeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	return base
}
