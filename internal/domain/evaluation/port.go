package evaluation

import (
	"context"

	"github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
)

// Evaluator is the remote evaluation backend.
type Evaluator interface {
	AddToContext(ctx context.Context, roomID, userID string, files []evidence.FileReference, fileType string) Result
	EvaluateEvidence(ctx context.Context, roomID, userID string, files []evidence.FileReference, threshold float64) Result
	EvaluateControls(ctx context.Context, roomID, userID string, files []evidence.FileReference, threshold float64) Result
	EvaluateAll(ctx context.Context, roomID, userID string, files []evidence.FileReference, opts Options) BatchResult
}

// RunRepository port for persisting and querying evaluation runs
type RunRepository interface {
	Save(ctx context.Context, r *Run) error
	Paginate(ctx context.Context, room string, page, pageSize int) ([]*Run, error)
}
