package object

import (
	"context"
	"sync"
)

// BucketGate runs a bucket existence check once per store, retrying on the
// next call when the previous attempt failed.
type BucketGate struct {
	mu    sync.Mutex
	ready bool
}

// Ensure calls ensure unless a previous call already succeeded.
func (g *BucketGate) Ensure(ctx context.Context, ensure func(context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready {
		return nil
	}
	if err := ensure(ctx); err != nil {
		return err
	}
	g.ready = true
	return nil
}
