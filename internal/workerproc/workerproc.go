package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"document-backend/internal/documents"
	"document-backend/internal/queue"
	"document-backend/internal/shared/telemetry"
)

// Analyzer runs the analysis pass for a stored document.
type Analyzer interface {
	Analyze(ctx context.Context, id string) (documents.Document, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body []byte) MessageMeta {
	if len(body) == 0 {
		return MessageMeta{}
	}
	sum := sha256.Sum256(body)
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrDecode indicates an unreadable task payload.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrProcess indicates analysis failed after the payload was parsed.
type ErrProcess struct {
	DocumentID string
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process document"
	}
	return "process document " + e.DocumentID + ": " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Handler processes document analysis tasks.
type Handler struct {
	Svc Analyzer
}

// NewHandler constructs a Handler.
func NewHandler(svc Analyzer) *Handler {
	return &Handler{Svc: svc}
}

// Register attaches the handler to mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TypeAnalyzeDocument, h.ProcessTask)
}

// ProcessTask decodes the task payload and analyzes the document.
// Tasks that can never succeed are wrapped with asynq.SkipRetry.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if h == nil || h.Svc == nil {
		return errors.New("analysis service not configured")
	}

	payload := t.Payload()
	msg, err := queue.DecodeMessage(payload)
	if err != nil {
		meta := ComputeMeta(payload)
		telemetry.Error("worker.decode_failed", map[string]any{
			"task_type": t.Type(),
			"body_len":  meta.BodyLen,
			"body_sha":  meta.BodySHA,
			"error":     err,
		})
		return fmt.Errorf("%w: %w", ErrDecode{Meta: meta, Err: err}, asynq.SkipRetry)
	}

	ctx = telemetry.WithRequestID(ctx, msg.RequestID)
	start := time.Now()

	doc, err := h.Svc.Analyze(ctx, msg.DocumentID)
	if err != nil {
		fields := map[string]any{
			"document_id": msg.DocumentID,
			"request_id":  msg.RequestID,
			"error":       err,
		}
		procErr := ErrProcess{DocumentID: msg.DocumentID, RequestID: msg.RequestID, Err: err}
		if errors.Is(err, documents.ErrNotFound) {
			telemetry.Warn("worker.document_missing", fields)
			return fmt.Errorf("%w: %w", procErr, asynq.SkipRetry)
		}
		telemetry.Error("worker.analyze_failed", fields)
		return procErr
	}

	telemetry.Info("worker.analyzed", map[string]any{
		"document_id": msg.DocumentID,
		"request_id":  msg.RequestID,
		"status":      doc.Status,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
