package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"document-backend/internal/shared/telemetry"
)

const (
	defaultMaxRetry = 3
	defaultTimeout  = 5 * time.Minute
)

// taskEnqueuer is the subset of *asynq.Client used here.
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Options configures the analysis enqueuer.
type Options struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// AsynqEnqueuer schedules document analysis tasks on Redis through asynq.
type AsynqEnqueuer struct {
	client taskEnqueuer
	opts   Options
	now    func() time.Time
}

// NewAsynqEnqueuer wraps an asynq client.
func NewAsynqEnqueuer(client *asynq.Client, opts Options) *AsynqEnqueuer {
	return newEnqueuer(client, opts)
}

func newEnqueuer(client taskEnqueuer, opts Options) *AsynqEnqueuer {
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = defaultMaxRetry
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &AsynqEnqueuer{client: client, opts: opts, now: time.Now}
}

// EnqueueAnalysis schedules an analysis of the given document.
func (e *AsynqEnqueuer) EnqueueAnalysis(ctx context.Context, documentID string) error {
	msg := Message{
		DocumentID: documentID,
		RequestID:  telemetry.RequestID(ctx),
		EnqueuedAt: e.now().UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode analysis task: %w", err)
	}

	task := asynq.NewTask(TypeAnalyzeDocument, payload)
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(e.opts.Queue),
		asynq.MaxRetry(e.opts.MaxRetry),
		asynq.Timeout(e.opts.Timeout),
	)
	if err != nil {
		return fmt.Errorf("enqueue analysis task: %w", err)
	}

	telemetry.Info("queue.enqueued", map[string]any{
		"document_id": documentID,
		"request_id":  msg.RequestID,
		"task_id":     info.ID,
		"queue":       info.Queue,
	})
	return nil
}
