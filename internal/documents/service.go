package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"document-backend/internal/extract"
	"document-backend/internal/llm"
	"document-backend/internal/shared/metrics"
	"document-backend/internal/shared/storage/object"
	"document-backend/internal/shared/telemetry"
)

// Locker grants cross-process exclusive access to a key.
// ok is false when another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// Enqueuer schedules a background analysis for a document.
type Enqueuer interface {
	EnqueueAnalysis(ctx context.Context, documentID string) error
}

// IngestInput is an accepted upload handed over by the transport layer.
type IngestInput struct {
	FileName string
	MimeType string
	Data     []byte
	Size     int64
}

// Service contains business logic for documents.
type Service struct {
	Store object.ObjectStore
	Repo  DocumentsRepo
	LLM   llm.Client

	// Locker and Queue are optional.
	Locker Locker
	Queue  Enqueuer

	Extract func(ctx context.Context, mimeType string, data []byte) (string, error)
	NewID   func() string
	Now     func() time.Time

	inflight singleflight.Group
}

// NewService wires a Service with the default extractor, UUID ids and wall clock.
func NewService(store object.ObjectStore, repo DocumentsRepo, client llm.Client) *Service {
	return &Service{
		Store:   store,
		Repo:    repo,
		LLM:     client,
		Extract: extract.TextFromBytes,
		NewID:   uuid.NewString,
		Now:     time.Now,
	}
}

// Ingest extracts text, uploads the bytes and records a pending document.
// Nothing is uploaded when extraction fails and nothing is recorded when the upload fails.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (Document, error) {
	size := in.Size
	if size <= 0 {
		size = int64(len(in.Data))
	}

	text, err := s.Extract(ctx, in.MimeType, in.Data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Document{}, ctxErr
		}
		metrics.IncIngestFailure("extract")
		telemetry.Warn("document.extract_failed", map[string]any{
			"filename":  in.FileName,
			"mime_type": in.MimeType,
			"error":     err,
		})
		return Document{}, &ExtractionError{MimeType: in.MimeType, Err: err}
	}

	key, err := s.Store.Put(ctx, in.FileName, bytes.NewReader(in.Data), size, in.MimeType)
	if err != nil {
		metrics.IncIngestFailure("store")
		telemetry.Error("document.store_failed", map[string]any{
			"filename": in.FileName,
			"size":     size,
			"error":    err,
		})
		return Document{}, &StorageError{Err: err}
	}

	doc := Document{
		ID:            s.NewID(),
		FileName:      in.FileName,
		StorageKey:    key,
		MimeType:      in.MimeType,
		ExtractedText: text,
		Status:        StatusPending,
		CreatedAt:     s.Now().UTC(),
	}
	created, err := s.Repo.Create(ctx, doc)
	if err != nil {
		metrics.IncIngestFailure("persist")
		fields := map[string]any{"document_id": doc.ID, "storage_key": key, "error": err}
		if rmErr := s.Store.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
			fields["cleanup_error"] = rmErr
		}
		telemetry.Error("document.persist_failed", fields)
		return Document{}, fmt.Errorf("persist document: %w", err)
	}

	metrics.IncIngested(in.MimeType)
	telemetry.Info("document.ingested", map[string]any{
		"document_id": created.ID,
		"storage_key": created.StorageKey,
		"mime_type":   created.MimeType,
		"size":        size,
		"text_chars":  len(created.ExtractedText),
	})

	if s.Queue != nil {
		if err := s.Queue.EnqueueAnalysis(ctx, created.ID); err != nil {
			telemetry.Warn("document.enqueue_failed", map[string]any{"document_id": created.ID, "error": err})
		}
	}
	return created, nil
}

// Analyze runs the metadata extraction pass for a document.
// Documents without text are returned unchanged. On failure the stored document is left as it was.
// Concurrent calls for the same id share one run.
func (s *Service) Analyze(ctx context.Context, id string) (Document, error) {
	v, err, _ := s.inflight.Do(id, func() (any, error) {
		return s.analyze(ctx, id)
	})
	if err != nil {
		return Document{}, err
	}
	return v.(Document).clone(), nil
}

func (s *Service) analyze(ctx context.Context, id string) (Document, error) {
	start := time.Now()

	doc, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.IncAnalysis(metrics.OutcomeNotFound)
		} else {
			metrics.IncAnalysis(metrics.OutcomeFailed)
		}
		return Document{}, err
	}
	if doc.ExtractedText == "" {
		metrics.IncAnalysis(metrics.OutcomeSkipped)
		telemetry.Info("document.analyze_skipped", map[string]any{"document_id": id, "reason": "empty_text"})
		return doc, nil
	}

	if s.Locker != nil {
		unlock, ok, err := s.Locker.TryLock(ctx, "document:analyze:"+id)
		if err != nil {
			metrics.IncAnalysis(metrics.OutcomeFailed)
			return Document{}, fmt.Errorf("acquire analysis lock: %w", err)
		}
		if !ok {
			metrics.IncAnalysis(metrics.OutcomeConflict)
			return Document{}, ErrAnalysisInProgress
		}
		defer unlock()
	}

	raw, err := s.LLM.Generate(ctx, BuildPrompt(doc.ExtractedText))
	if err != nil {
		metrics.IncAnalysis(metrics.OutcomeServiceErr)
		telemetry.Error("document.llm_failed", map[string]any{"document_id": id, "error": err})
		return Document{}, &ServiceError{Err: err}
	}

	md, err := ParseMetadata(raw)
	if err != nil {
		metrics.IncAnalysis(metrics.OutcomeParseErr)
		telemetry.Error("document.llm_parse_failed", map[string]any{
			"document_id": id,
			"error":       err,
			"response":    TruncateText(raw, 500),
		})
		return Document{}, err
	}

	doc.AIMetadata = md
	doc.Status = StatusAnalyzed
	saved, err := s.Repo.Save(ctx, doc)
	if err != nil {
		metrics.IncAnalysis(metrics.OutcomeFailed)
		telemetry.Error("document.save_failed", map[string]any{"document_id": id, "error": err})
		return Document{}, fmt.Errorf("save analysis: %w", err)
	}

	metrics.IncAnalysis(metrics.OutcomeAnalyzed)
	metrics.ObserveAnalysisSeconds(time.Since(start).Seconds())
	telemetry.Info("document.analyzed", map[string]any{
		"document_id": id,
		"type":        md.Type,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return saved, nil
}

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	return s.Repo.FindByID(ctx, id)
}
