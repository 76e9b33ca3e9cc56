package evidence

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a file is not in the requested room.
	ErrNotFound = errors.New("evidence file not found")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("evidence file too large")
	// ErrSecretsFound is returned when screening blocks an upload.
	ErrSecretsFound = errors.New("evidence file contains credentials")
	// ErrTooManyFiles is returned when a whole-room selection is over the cap.
	ErrTooManyFiles = errors.New("too many evidence files in room")
)

// FileID identifier type
type FileID string

// FileReference is what the remote evaluator receives. URL is the
// decrypted form when sent over the wire and the encrypted form at rest.
type FileReference struct {
	FileID string `json:"fileId"`
	URL    string `json:"url"`
}

// File is one persisted row of evidence_files.
type File struct {
	ID           FileID    `json:"id"`
	RoomID       string    `json:"room_id"`
	UserID       string    `json:"user_id"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	ObjectKey    string    `json:"object_key"`
	EncryptedURL string    `json:"-"`
	Findings     int       `json:"secret_findings"`
	CreatedAt    time.Time `json:"created_at"`
}

// Reference returns the at-rest reference for the file.
func (f *File) Reference() FileReference {
	return FileReference{FileID: string(f.ID), URL: f.EncryptedURL}
}

// KeyScheme decides how object keys are laid out in the bucket.
type KeyScheme string

const (
	KeySchemeID     KeyScheme = "id"     // {room}/{fileID}
	KeySchemeLegacy KeyScheme = "legacy" // {room}/{uuid}-{filename}
)

// UploadInput is one file handed to the upload helper.
type UploadInput struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploadResult describes a successfully stored file.
type UploadResult struct {
	FileID         FileID    `json:"file_id"`
	RoomID         string    `json:"room_id"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	ObjectKey      string    `json:"object_key"`
	URL            string    `json:"url"`
	SecretFindings int       `json:"secret_findings"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// UploadOutcome is the per-item result of a batch upload. Exactly one of
// Result and Err is set.
type UploadOutcome struct {
	Item   string        `json:"item"`
	Result *UploadResult `json:"result,omitempty"`
	Err    error         `json:"-"`
}

// Failed reports whether the item did not upload.
func (o UploadOutcome) Failed() bool { return o.Err != nil }
