package migration

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/crypto"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/db/sqlite"
)

const (
	oldSecret = "old-secret-0123456789"
	newSecret = "new-secret-0123456789"
)

func seed(t *testing.T, codec *crypto.Codec) *sqlite.EvidenceRepository {
	t.Helper()
	db, err := sqlite.Connect(t.Context(), "file:"+filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := sqlite.NewEvidenceRepository(db)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		room := "room-a"
		if i%2 == 1 {
			room = "room-b"
		}
		url := fmt.Sprintf("https://blob/%d", i)
		if i < 3 {
			url, err = codec.Encrypt(url)
			require.NoError(t, err)
		}
		require.NoError(t, repo.Save(t.Context(), &domain.File{
			ID:           domain.FileID(fmt.Sprintf("file-%02d", i)),
			RoomID:       room,
			ObjectKey:    fmt.Sprintf("%s/%d", room, i),
			EncryptedURL: url,
			CreatedAt:    created.Add(time.Duration(i) * time.Minute),
		}))
	}
	return repo
}

func TestInspect(t *testing.T) {
	codec, err := crypto.NewCodec(newSecret)
	require.NoError(t, err)
	svc := &Service{Repo: seed(t, codec), URLs: codec, BatchSize: 2}

	rep, err := svc.Inspect(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Scanned)
	assert.Equal(t, []RoomStats{
		{Room: "room-a", Encrypted: 2, Plaintext: 2},
		{Room: "room-b", Encrypted: 1, Plaintext: 2},
	}, rep.Rooms)
}

func TestEncryptLegacyIsIdempotent(t *testing.T) {
	codec, err := crypto.NewCodec(newSecret)
	require.NoError(t, err)
	repo := seed(t, codec)
	svc := &Service{Repo: repo, URLs: codec, BatchSize: 3}

	dry := &Service{Repo: repo, URLs: codec, DryRun: true}
	rep, err := dry.EncryptLegacy(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Updated)
	after, err := svc.Inspect(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, after.Rooms[0].Plaintext)

	rep, err = svc.EncryptLegacy(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Scanned)
	assert.Equal(t, 4, rep.Updated)

	rep, err = svc.EncryptLegacy(t.Context())
	require.NoError(t, err)
	assert.Zero(t, rep.Updated)

	f, err := repo.Get(t.Context(), "room-a", "file-04")
	require.NoError(t, err)
	assert.Equal(t, "https://blob/4", codec.SafeDecrypt(f.EncryptedURL))
}

func TestRotate(t *testing.T) {
	old, err := crypto.NewCodec(oldSecret)
	require.NoError(t, err)
	repo := seed(t, old)

	// a row encrypted under a key nobody holds any more
	stranger, err := crypto.NewCodec("lost-secret-0123456789")
	require.NoError(t, err)
	lost, err := stranger.Encrypt("https://blob/lost")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateURL(t.Context(), "file-06", lost))

	rotating, err := crypto.NewCodec(newSecret, oldSecret)
	require.NoError(t, err)
	rep, err := (&Service{Repo: repo, URLs: rotating}).Rotate(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Updated)
	assert.Equal(t, 1, rep.Skipped)

	only, err := crypto.NewCodec(newSecret)
	require.NoError(t, err)
	f, err := repo.Get(t.Context(), "room-b", "file-01")
	require.NoError(t, err)
	got, err := only.Decrypt(f.EncryptedURL)
	require.NoError(t, err)
	assert.Equal(t, "https://blob/1", got)
}
