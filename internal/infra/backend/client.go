package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/automaton-evidence/internal/domain/evaluation"
	"github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
)

const (
	PathAddDocuments      = "/graphiti/add-documents"
	PathEvidenceEvaluator = "/lance/compliance-evidence-evaluator"
	PathControlsEvaluator = "/lance/compliance-controls-evaluator"

	DefaultBaseURL         = "http://localhost:8000"
	DefaultContextTimeout  = 60 * time.Second
	DefaultEvaluateTimeout = 120 * time.Second

	// error bodies larger than this are not inspected for a message
	maxBodyBytes = 4 << 20
)

// Decrypter turns a stored URL back into one the backend can fetch.
type Decrypter interface {
	SafeDecrypt(value string) string
}

// Client talks to the remote evaluation backend. It is safe for
// concurrent use.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	urls            Decrypter
	contextTimeout  time.Duration
	evaluateTimeout time.Duration
}

// Option tunes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

// WithTimeouts overrides the per-call timeouts. Zero keeps the default.
func WithTimeouts(contextTimeout, evaluateTimeout time.Duration) Option {
	return func(c *Client) {
		if contextTimeout > 0 {
			c.contextTimeout = contextTimeout
		}
		if evaluateTimeout > 0 {
			c.evaluateTimeout = evaluateTimeout
		}
	}
}

// NewClient builds a Client. An empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL string, urls Decrypter, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{},
		urls:            urls,
		contextTimeout:  DefaultContextTimeout,
		evaluateTimeout: DefaultEvaluateTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type addDocumentsRequest struct {
	UserID       string                   `json:"user_id"`
	UserUUID     string                   `json:"user_uuid"`
	ContextFiles []evidence.FileReference `json:"context_files"`
	FileType     string                   `json:"file_type"`
}

type evaluatorRequest struct {
	UserID              string                   `json:"user_id"`
	UserUUID            string                   `json:"user_uuid"`
	Files               []evidence.FileReference `json:"files"`
	SimilarityThreshold float64                  `json:"similarity_threshold"`
}

// AddToContext sends the files to the knowledge-graph ingestion endpoint.
func (c *Client) AddToContext(ctx context.Context, roomID, userID string, files []evidence.FileReference, fileType string) evaluation.Result {
	body := addDocumentsRequest{
		UserID:       roomID,
		UserUUID:     userID,
		ContextFiles: c.decrypt(files),
		FileType:     fileType,
	}
	return c.post(ctx, evaluation.KindContext, PathAddDocuments, c.contextTimeout, body)
}

// EvaluateEvidence scores the files against the room's evidence requirements.
func (c *Client) EvaluateEvidence(ctx context.Context, roomID, userID string, files []evidence.FileReference, threshold float64) evaluation.Result {
	return c.evaluate(ctx, evaluation.KindEvidence, PathEvidenceEvaluator, roomID, userID, files, threshold)
}

// EvaluateControls scores the files against the room's controls.
func (c *Client) EvaluateControls(ctx context.Context, roomID, userID string, files []evidence.FileReference, threshold float64) evaluation.Result {
	return c.evaluate(ctx, evaluation.KindControls, PathControlsEvaluator, roomID, userID, files, threshold)
}

func (c *Client) evaluate(ctx context.Context, kind evaluation.Kind, path, roomID, userID string, files []evidence.FileReference, threshold float64) evaluation.Result {
	if threshold < 0 || threshold > 1 {
		return evaluation.Failure(fmt.Sprintf("similarity threshold must be between 0 and 1, got %v", threshold))
	}
	body := evaluatorRequest{
		UserID:              roomID,
		UserUUID:            userID,
		Files:               c.decrypt(files),
		SimilarityThreshold: threshold,
	}
	return c.post(ctx, kind, path, c.evaluateTimeout, body)
}

// EvaluateAll runs the three calls at once and waits for every one of them.
// A failing call does not cancel the others.
func (c *Client) EvaluateAll(ctx context.Context, roomID, userID string, files []evidence.FileReference, opts evaluation.Options) evaluation.BatchResult {
	var (
		out evaluation.BatchResult
		g   errgroup.Group
	)
	g.Go(func() error {
		out.Context = c.AddToContext(ctx, roomID, userID, files, opts.FileType)
		return nil
	})
	g.Go(func() error {
		out.Evidence = c.EvaluateEvidence(ctx, roomID, userID, files, opts.SimilarityThreshold)
		return nil
	})
	g.Go(func() error {
		out.Controls = c.EvaluateControls(ctx, roomID, userID, files, opts.SimilarityThreshold)
		return nil
	})
	_ = g.Wait()
	return out
}

func (c *Client) decrypt(files []evidence.FileReference) []evidence.FileReference {
	out := make([]evidence.FileReference, len(files))
	for i, f := range files {
		out[i] = evidence.FileReference{FileID: f.FileID, URL: f.URL}
		if c.urls != nil {
			out[i].URL = c.urls.SafeDecrypt(f.URL)
		}
	}
	return out
}

func (c *Client) post(ctx context.Context, kind evaluation.Kind, path string, timeout time.Duration, payload any) evaluation.Result {
	start := time.Now()
	res := c.do(ctx, path, timeout, payload)

	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("path", path),
		zap.Bool("success", res.Success),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
	}
	if res.Success {
		zap.L().Info("backend call finished", fields...)
	} else {
		zap.L().Warn("backend call failed", append(fields, zap.String("message", res.Message))...)
	}
	return res
}

func (c *Client) do(ctx context.Context, path string, timeout time.Duration, payload any) evaluation.Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return evaluation.Failure(fmt.Sprintf("failed to marshal request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return evaluation.Failure(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return evaluation.Failure(transportMessage(err, timeout))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return evaluation.Result{Success: false, StatusCode: resp.StatusCode, Message: transportMessage(err, timeout)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := messageFromBody(raw)
		if msg == "" {
			msg = fmt.Sprintf("request failed with status code %d", resp.StatusCode)
		}
		return evaluation.Result{Success: false, StatusCode: resp.StatusCode, Message: msg, Data: jsonOrNil(raw)}
	}

	return evaluation.Result{
		Success:    true,
		StatusCode: resp.StatusCode,
		Message:    messageFromBody(raw),
		Data:       jsonOrNil(raw),
	}
}

// messageFromBody pulls a human readable message out of a JSON error body.
func messageFromBody(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"message", "detail", "error"} {
		switch v := body[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok && m != "" {
				return m
			}
		case nil:
		default:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}
	return ""
}

func transportMessage(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timeout of %s exceeded", timeout)
	}
	return err.Error()
}

func jsonOrNil(raw []byte) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return json.RawMessage(raw)
}
