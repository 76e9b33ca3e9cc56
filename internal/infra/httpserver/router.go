package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	appevaluation "github.com/bryanwahyu/automaton-evidence/internal/application/evaluation"
	appevidence "github.com/bryanwahyu/automaton-evidence/internal/application/evidence"
	domeval "github.com/bryanwahyu/automaton-evidence/internal/domain/evaluation"
	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
	"github.com/bryanwahyu/automaton-evidence/internal/domain/session"
	"github.com/bryanwahyu/automaton-evidence/internal/middleware"
)

// maxMultipartMemory is how much of a multipart body is buffered in RAM
// before spilling to temp files.
const maxMultipartMemory = 32 << 20

// Deps wires the router.
type Deps struct {
	Files       *appevidence.Service
	Evaluations *appevaluation.Service
	Auth        *middleware.Authenticator
	Health      map[string]middleware.HealthChecker

	// MaxBodyBytes caps an upload request body; zero leaves it unbounded.
	// MaxFiles caps files per upload request; zero leaves it unbounded.
	MaxBodyBytes int64
	MaxFiles     int

	// RateCapacity zero disables rate limiting.
	RateCapacity int
	RateRefill   int
}

type Router struct {
	filesSvc     *appevidence.Service
	evalSvc      *appevaluation.Service
	maxBodyBytes int64
	maxFiles     int
}

func NewRouter(d Deps) http.Handler {
	r := &Router{
		filesSvc:     d.Files,
		evalSvc:      d.Evaluations,
		maxBodyBytes: d.MaxBodyBytes,
		maxFiles:     d.MaxFiles,
	}
	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler(d.Health))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/rooms/{room}", func(rt chi.Router) {
		rt.Use(middleware.SessionAuth(d.Auth))
		if d.RateCapacity > 0 {
			rt.Use(middleware.RateLimitMiddleware(d.RateCapacity, d.RateRefill))
		}
		rt.Use(middleware.RequireRoom)

		rt.Post("/files", r.wrap(r.handleUpload))
		rt.Get("/files", r.wrap(r.handleListFiles))
		rt.Post("/context", r.wrap(r.handleAddToContext))
		rt.Post("/evaluations", r.wrap(r.handleEvaluateAll))
		rt.Post("/evaluations/evidence", r.wrap(r.handleEvaluateEvidence))
		rt.Post("/evaluations/controls", r.wrap(r.handleEvaluateControls))
		rt.Get("/evaluations", r.wrap(r.handleHistory))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks client input errors.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		switch {
		case errors.As(err, &br):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrTooManyFiles):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, session.ErrMissing), errors.Is(err, session.ErrExpired):
			http.Error(w, err.Error(), http.StatusUnauthorized)
		case errors.Is(err, session.ErrRoomMismatch):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, domain.ErrTooLarge):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		case errors.Is(err, domain.ErrSecretsFound):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			zap.L().Error("request failed",
				zap.String("path", req.URL.Path),
				zap.String("request_id", chimw.GetReqID(req.Context())),
				zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

type uploadFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// POST /v1/rooms/{room}/files (multipart, field "files")
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	room := chi.URLParam(req, "room")
	sess, err := session.FromContext(req.Context())
	if err != nil {
		return err
	}
	if r.maxBodyBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.maxBodyBytes)
	}
	if err := req.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("%w: request body over %d bytes", domain.ErrTooLarge, tooBig.Limit)
		}
		return invalid("parse multipart form: %v", err)
	}
	defer req.MultipartForm.RemoveAll()

	headers := req.MultipartForm.File["files"]
	if len(headers) == 0 {
		return invalid("no files in field %q", "files")
	}
	if r.maxFiles > 0 && len(headers) > r.maxFiles {
		return invalid("%d files in one request, at most %d", len(headers), r.maxFiles)
	}
	inputs := make([]domain.UploadInput, 0, len(headers))
	for _, fh := range headers {
		inputs = append(inputs, uploadInput(fh))
	}

	outcomes := r.filesSvc.UploadMultipleFiles(req.Context(), sess, room, inputs)
	uploaded := appevidence.Succeeded(outcomes)
	failed := make([]uploadFailure, 0)
	for _, o := range outcomes {
		if o.Failed() {
			failed = append(failed, uploadFailure{File: o.Item, Error: o.Err.Error()})
		}
	}
	middleware.RecordUploads(len(uploaded), len(failed))

	status := http.StatusCreated
	if len(uploaded) == 0 {
		status = http.StatusUnprocessableEntity
	}
	return writeJSON(w, status, map[string]any{
		"files":  uploaded,
		"failed": failed,
	})
}

func uploadInput(fh *multipart.FileHeader) domain.UploadInput {
	return domain.UploadInput{
		Name:        middleware.SanitizeFileName(fh.Filename),
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// GET /v1/rooms/{room}/files?limit=20
func (r *Router) handleListFiles(w http.ResponseWriter, req *http.Request) error {
	room := chi.URLParam(req, "room")
	sess, err := session.FromContext(req.Context())
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.filesSvc.List(req.Context(), sess, room, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

func decodeEvalRequest(req *http.Request) (appevaluation.Request, error) {
	var body appevaluation.Request
	if req.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return body, invalid("bad json: %v", err)
		}
	}
	if err := middleware.ValidateFileIDs(body.FileIDs); err != nil {
		return body, badRequest{err}
	}
	if err := middleware.ValidateThreshold(body.Threshold); err != nil {
		return body, badRequest{err}
	}
	body.FileType = middleware.SanitizeString(body.FileType)
	return body, nil
}

func (r *Router) single(w http.ResponseWriter, req *http.Request, call func(*http.Request, *session.Session, string, appevaluation.Request) (domeval.Result, error)) error {
	room := chi.URLParam(req, "room")
	sess, err := session.FromContext(req.Context())
	if err != nil {
		return err
	}
	body, err := decodeEvalRequest(req)
	if err != nil {
		return err
	}

	middleware.IncrementEvaluationsRunning()
	res, err := call(req, sess, room, body)
	middleware.DecrementEvaluationsRunning(err == nil && res.Success)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	return writeJSON(w, status, res)
}

// POST /v1/rooms/{room}/context
// Body: {"file_ids": [...], "file_type": "evidence"}
func (r *Router) handleAddToContext(w http.ResponseWriter, req *http.Request) error {
	return r.single(w, req, func(hr *http.Request, sess *session.Session, room string, body appevaluation.Request) (domeval.Result, error) {
		return r.evalSvc.AddToContext(hr.Context(), sess, room, body)
	})
}

// POST /v1/rooms/{room}/evaluations/evidence
// Body: {"file_ids": [...], "similarity_threshold": 0.5}
func (r *Router) handleEvaluateEvidence(w http.ResponseWriter, req *http.Request) error {
	return r.single(w, req, func(hr *http.Request, sess *session.Session, room string, body appevaluation.Request) (domeval.Result, error) {
		return r.evalSvc.EvaluateEvidence(hr.Context(), sess, room, body)
	})
}

// POST /v1/rooms/{room}/evaluations/controls
func (r *Router) handleEvaluateControls(w http.ResponseWriter, req *http.Request) error {
	return r.single(w, req, func(hr *http.Request, sess *session.Session, room string, body appevaluation.Request) (domeval.Result, error) {
		return r.evalSvc.EvaluateControls(hr.Context(), sess, room, body)
	})
}

// POST /v1/rooms/{room}/evaluations
// Runs context, evidence and controls together. Partial failures are
// reported per call with a 200; the caller inspects each result.
func (r *Router) handleEvaluateAll(w http.ResponseWriter, req *http.Request) error {
	room := chi.URLParam(req, "room")
	sess, err := session.FromContext(req.Context())
	if err != nil {
		return err
	}
	body, err := decodeEvalRequest(req)
	if err != nil {
		return err
	}

	middleware.IncrementEvaluationsRunning()
	out, err := r.evalSvc.EvaluateAll(req.Context(), sess, room, body)
	middleware.DecrementEvaluationsRunning(err == nil && out.AllSucceeded())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"success": out.AllSucceeded(),
		"results": out,
	})
}

// GET /v1/rooms/{room}/evaluations?page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	room := chi.URLParam(req, "room")
	sess, err := session.FromContext(req.Context())
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.evalSvc.History(req.Context(), sess, room, middleware.ValidatePage(page), middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}
