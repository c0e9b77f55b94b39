package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InlineDispatcher runs handlers synchronously in the caller's goroutine.
// Used when no Redis broker is configured: the system stays correct, only
// less decoupled. Delayed jobs run immediately; rollup idempotence makes the
// lost coalescing harmless.
type InlineDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewInlineDispatcher() *InlineDispatcher {
	return &InlineDispatcher{handlers: make(map[string]Handler)}
}

func (d *InlineDispatcher) Register(kind string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

func (d *InlineDispatcher) Enqueue(ctx context.Context, job Job) error {
	d.mu.RLock()
	h, ok := d.handlers[job.Kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler for job kind %q", job.Kind)
	}
	job.EnqueuedAt = time.Now().UTC()
	return h(ctx, job)
}

func (d *InlineDispatcher) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error {
	return d.Enqueue(ctx, job)
}
