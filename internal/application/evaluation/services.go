package evaluation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-evidence/internal/application"
	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evaluation"
	"github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
	"github.com/bryanwahyu/automaton-evidence/internal/domain/session"
)

// FileSource resolves the files a request refers to.
type FileSource interface {
	References(ctx context.Context, sess *session.Session, room string, ids []string) ([]evidence.FileReference, error)
}

// Service runs evaluations for a room and keeps an audit trail of every
// backend call. Backend failures come back inside the Result; the error
// return is only for lookup and authorization problems.
type Service struct {
	Files     FileSource
	Evaluator domain.Evaluator
	Runs      domain.RunRepository // optional
	Clock     application.Clock

	// DefaultThreshold nil means DefaultSimilarityThreshold; zero is a
	// valid threshold.
	DefaultThreshold *float64
	DefaultFileType  string
}

// Request selects files and tunes a call. Empty FileIDs means every file
// in the room; nil Threshold means the service default.
type Request struct {
	FileIDs   []string `json:"file_ids"`
	FileType  string   `json:"file_type"`
	Threshold *float64 `json:"similarity_threshold"`
}

func (s *Service) AddToContext(ctx context.Context, sess *session.Session, room string, req Request) (domain.Result, error) {
	files, err := s.Files.References(ctx, sess, room, req.FileIDs)
	if err != nil {
		return domain.Result{}, err
	}
	res := s.Evaluator.AddToContext(ctx, room, sess.UserID, files, s.fileType(req))
	s.record(ctx, sess, room, domain.KindContext, len(files), res)
	return res, nil
}

func (s *Service) EvaluateEvidence(ctx context.Context, sess *session.Session, room string, req Request) (domain.Result, error) {
	files, err := s.Files.References(ctx, sess, room, req.FileIDs)
	if err != nil {
		return domain.Result{}, err
	}
	res := s.Evaluator.EvaluateEvidence(ctx, room, sess.UserID, files, s.threshold(req))
	s.record(ctx, sess, room, domain.KindEvidence, len(files), res)
	return res, nil
}

func (s *Service) EvaluateControls(ctx context.Context, sess *session.Session, room string, req Request) (domain.Result, error) {
	files, err := s.Files.References(ctx, sess, room, req.FileIDs)
	if err != nil {
		return domain.Result{}, err
	}
	res := s.Evaluator.EvaluateControls(ctx, room, sess.UserID, files, s.threshold(req))
	s.record(ctx, sess, room, domain.KindControls, len(files), res)
	return res, nil
}

// EvaluateAll runs the three backend calls together.
func (s *Service) EvaluateAll(ctx context.Context, sess *session.Session, room string, req Request) (domain.BatchResult, error) {
	files, err := s.Files.References(ctx, sess, room, req.FileIDs)
	if err != nil {
		return domain.BatchResult{}, err
	}
	out := s.Evaluator.EvaluateAll(ctx, room, sess.UserID, files, domain.Options{
		FileType:            s.fileType(req),
		SimilarityThreshold: s.threshold(req),
	})
	out.Each(func(k domain.Kind, r domain.Result) {
		s.record(ctx, sess, room, k, len(files), r)
	})
	if err := out.Err(); err != nil {
		zap.L().Warn("evaluation batch finished with failures", zap.String("room", room), zap.Error(err))
	}
	return out, nil
}

// History returns a page of past runs for the room.
func (s *Service) History(ctx context.Context, sess *session.Session, room string, page, pageSize int) ([]*domain.Run, error) {
	if err := sess.Validate(s.Clock.Now()); err != nil {
		return nil, err
	}
	if !sess.CanAccess(room) {
		return nil, session.ErrRoomMismatch
	}
	if s.Runs == nil {
		return []*domain.Run{}, nil
	}
	return s.Runs.Paginate(ctx, room, page, pageSize)
}

func (s *Service) threshold(req Request) float64 {
	if req.Threshold != nil {
		return *req.Threshold
	}
	if s.DefaultThreshold != nil {
		return *s.DefaultThreshold
	}
	return domain.DefaultSimilarityThreshold
}

func (s *Service) fileType(req Request) string {
	if req.FileType != "" {
		return req.FileType
	}
	if s.DefaultFileType != "" {
		return s.DefaultFileType
	}
	return "evidence"
}

// record saves the run; a failing audit write is logged and never changes
// the caller's result.
func (s *Service) record(ctx context.Context, sess *session.Session, room string, kind domain.Kind, fileCount int, res domain.Result) {
	if s.Runs == nil {
		return
	}
	payload := string(res.Data)
	if payload == "" {
		b, _ := json.Marshal(map[string]any{"status_code": res.StatusCode})
		payload = string(b)
	}
	run := &domain.Run{
		ID:        domain.RunID(uuid.NewString()),
		RoomID:    room,
		UserID:    sess.UserID,
		Kind:      kind,
		Success:   res.Success,
		Message:   res.Message,
		FileCount: fileCount,
		Payload:   payload,
		CreatedAt: s.Clock.Now().UTC(),
	}
	if err := s.Runs.Save(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Error("failed to record evaluation run",
			zap.String("room", room),
			zap.String("kind", string(kind)),
			zap.Error(fmt.Errorf("save run: %w", err)))
	}
}
