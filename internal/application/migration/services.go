// Package migration holds operator maintenance over the evidence table:
// reporting on and fixing the at-rest form of stored blob URLs.
package migration

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
)

// DefaultBatchSize is the page size used when walking the table.
const DefaultBatchSize = 500

// Codec is the subset of the URL codec maintenance needs.
type Codec interface {
	Encrypt(url string) (string, error)
	Decrypt(value string) (string, error)
	IsEncrypted(value string) bool
}

type Service struct {
	Repo      domain.Repository
	URLs      Codec
	BatchSize int
	DryRun    bool
}

// RoomStats counts rows per storage form.
type RoomStats struct {
	Room      string `json:"room"`
	Encrypted int    `json:"encrypted"`
	Plaintext int    `json:"plaintext"`
	Empty     int    `json:"empty"`
}

// Report is the result of a table walk.
type Report struct {
	Rooms   []RoomStats `json:"rooms"`
	Scanned int         `json:"scanned"`
	Updated int         `json:"updated"`
	Skipped int         `json:"skipped"`
}

// Inspect counts encrypted and plaintext rows per room.
func (s *Service) Inspect(ctx context.Context) (*Report, error) {
	stats := map[string]*RoomStats{}
	rep := &Report{}
	err := s.walk(ctx, func(f *domain.File) error {
		rs := stats[f.RoomID]
		if rs == nil {
			rs = &RoomStats{Room: f.RoomID}
			stats[f.RoomID] = rs
		}
		switch {
		case f.EncryptedURL == "":
			rs.Empty++
		case s.URLs.IsEncrypted(f.EncryptedURL):
			rs.Encrypted++
		default:
			rs.Plaintext++
		}
		rep.Scanned++
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, rs := range stats {
		rep.Rooms = append(rep.Rooms, *rs)
	}
	sort.Slice(rep.Rooms, func(i, j int) bool { return rep.Rooms[i].Room < rep.Rooms[j].Room })
	return rep, nil
}

// EncryptLegacy encrypts every plaintext URL. Rows already encrypted are
// left alone, so reruns are no-ops.
func (s *Service) EncryptLegacy(ctx context.Context) (*Report, error) {
	rep := &Report{}
	err := s.walk(ctx, func(f *domain.File) error {
		rep.Scanned++
		if f.EncryptedURL == "" || s.URLs.IsEncrypted(f.EncryptedURL) {
			return nil
		}
		enc, err := s.URLs.Encrypt(f.EncryptedURL)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", f.ID, err)
		}
		if err := s.update(ctx, f.ID, enc); err != nil {
			return err
		}
		rep.Updated++
		return nil
	})
	return rep, err
}

// Rotate re-encrypts every decryptable URL under the primary key, after
// which previous keys can be retired. Rows no configured key opens are
// counted as skipped.
func (s *Service) Rotate(ctx context.Context) (*Report, error) {
	rep := &Report{}
	err := s.walk(ctx, func(f *domain.File) error {
		rep.Scanned++
		if !s.URLs.IsEncrypted(f.EncryptedURL) {
			return nil
		}
		plain, err := s.URLs.Decrypt(f.EncryptedURL)
		if err != nil {
			zap.L().Warn("cannot decrypt stored url", zap.String("file_id", string(f.ID)), zap.Error(err))
			rep.Skipped++
			return nil
		}
		enc, err := s.URLs.Encrypt(plain)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", f.ID, err)
		}
		if err := s.update(ctx, f.ID, enc); err != nil {
			return err
		}
		rep.Updated++
		return nil
	})
	return rep, err
}

func (s *Service) update(ctx context.Context, id domain.FileID, enc string) error {
	if s.DryRun {
		return nil
	}
	if err := s.Repo.UpdateURL(ctx, id, enc); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

// walk visits every row in id order, one batch at a time.
func (s *Service) walk(ctx context.Context, fn func(*domain.File) error) error {
	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	var after domain.FileID
	for {
		batch, err := s.Repo.ListAll(ctx, after, size)
		if err != nil {
			return fmt.Errorf("list after %q: %w", after, err)
		}
		for _, f := range batch {
			if err := fn(f); err != nil {
				return err
			}
		}
		if len(batch) < size {
			return nil
		}
		after = batch[len(batch)-1].ID
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
