package evaluation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DefaultSimilarityThreshold is used when a caller does not pick one.
const DefaultSimilarityThreshold = 0.5

// Kind enum
type Kind string

const (
	KindContext  Kind = "context"
	KindEvidence Kind = "evidence"
	KindControls Kind = "controls"
)

// Result is the outcome of one call to the evaluation backend. Callers
// check Success; failures are never returned as errors.
type Result struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Failure builds an unsuccessful Result.
func Failure(msg string) Result { return Result{Success: false, Message: msg} }

// BatchResult collects the three outcomes of an evaluate-all run.
type BatchResult struct {
	Context  Result `json:"context"`
	Evidence Result `json:"evidence"`
	Controls Result `json:"controls"`
}

// AllSucceeded reports whether every call in the batch succeeded.
func (b BatchResult) AllSucceeded() bool {
	return b.Context.Success && b.Evidence.Success && b.Controls.Success
}

// Each visits the results in a fixed order.
func (b BatchResult) Each(fn func(Kind, Result)) {
	fn(KindContext, b.Context)
	fn(KindEvidence, b.Evidence)
	fn(KindControls, b.Controls)
}

// Err aggregates the failed calls, nil when all succeeded.
func (b BatchResult) Err() error {
	var merr *multierror.Error
	b.Each(func(k Kind, r Result) {
		if !r.Success {
			merr = multierror.Append(merr, fmt.Errorf("%s: %s", k, r.Message))
		}
	})
	return merr.ErrorOrNil()
}

// Options tunes an evaluate-all run.
type Options struct {
	FileType            string
	SimilarityThreshold float64
}

// RunID identifier type
type RunID string

// Run is a persisted record of one evaluation call, kept for auditing.
type Run struct {
	ID        RunID     `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	FileCount int       `json:"file_count"`
	Payload   string    `json:"payload"` // raw JSON string from backend
	CreatedAt time.Time `json:"created_at"`
}
