package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps objects on local disk. Used for local runs where no object
// store is reachable; URLs are file:// and only useful to a co-located
// backend.
type FSStore struct{ base string }

func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: abs}, nil
}

func (s *FSStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return fileURL(dst), nil
}

// URL returns the file:// URL of key. Local links never expire.
func (s *FSStore) URL(_ context.Context, key string) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	return fileURL(dst), nil
}

func fileURL(p string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

func (s *FSStore) Check(context.Context) error {
	_, err := os.Stat(s.base)
	return err
}

func (s *FSStore) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	dst := filepath.Join(s.base, filepath.FromSlash(key))
	if !strings.HasPrefix(dst, s.base+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes store", key)
	}
	return dst, nil
}
