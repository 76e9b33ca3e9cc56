package evidence

import (
	"context"
	"io"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, f *File) error
	Get(ctx context.Context, room string, id FileID) (*File, error)
	ListByRoom(ctx context.Context, room string, limit int) ([]*File, error)

	// dipakai oleh evidencectl untuk migrasi baris lama
	ListAll(ctx context.Context, afterID FileID, limit int) ([]*File, error)
	UpdateURL(ctx context.Context, id FileID, encryptedURL string) error
}

// BlobStore port (interface untuk penyimpanan objek)
type BlobStore interface {
	// Put stores the object and returns its stable URL, the form kept at rest.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// URL returns a URL a remote service can fetch right now; stores with
	// expiring links sign a fresh one on every call.
	URL(ctx context.Context, key string) (string, error)
}

// URLCodec owns the format of the encrypted_url column.
type URLCodec interface {
	Encrypt(url string) (string, error)
	SafeDecrypt(value string) string
	IsEncrypted(value string) bool
}
