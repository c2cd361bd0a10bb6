package llm

import (
	"context"
	"errors"
	"time"

	"document-backend/internal/shared/metrics"
)

// Client generates free-form text for a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("LLM provider not configured")

// PlaceholderClient fails every call. It stands in when no provider is configured.
type PlaceholderClient struct{}

// Generate returns ErrNotConfigured.
func (PlaceholderClient) Generate(ctx context.Context, prompt string) (string, error) {
	return "", ErrNotConfigured
}

// Observed bounds each call with a timeout and records its duration per provider.
type Observed struct {
	Next     Client
	Provider string
	Timeout  time.Duration
}

// Generate calls the wrapped client.
func (o Observed) Generate(ctx context.Context, prompt string) (string, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := o.Next.Generate(ctx, prompt)
	metrics.ObserveLLMSeconds(o.Provider, time.Since(start).Seconds())
	return out, err
}
