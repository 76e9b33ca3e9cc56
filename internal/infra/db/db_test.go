package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
)

func TestOpenSQLite(t *testing.T) {
	s, err := Open(t.Context(), "sqlite", "file:"+filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Check(t.Context()))
	require.NoError(t, s.Evidence.Save(t.Context(), &evidence.File{ID: "f1", RoomID: "r", ObjectKey: "r/f1", EncryptedURL: "enc:v1:x"}))
	f, err := s.Evidence.Get(t.Context(), "r", "f1")
	require.NoError(t, err)
	assert.Equal(t, "enc:v1:x", f.EncryptedURL)
	assert.NotNil(t, s.Runs)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(t.Context(), "oracle", "")
	assert.ErrorContains(t, err, `unknown database driver "oracle"`)
}
