package rpc

import (
	"context"
	"sync"
)

// Inflight tracks the contexts of requests being served so a cancel
// envelope can abort them.
type Inflight struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewInflight creates an empty tracker.
func NewInflight() *Inflight {
	return &Inflight{cancels: make(map[string]context.CancelFunc)}
}

// Begin derives the context for serving request id. done must be called
// once the request is answered.
func (f *Inflight) Begin(ctx context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancels[id] = cancel
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		delete(f.cancels, id)
		f.mu.Unlock()
		cancel()
	}
}

// Cancel aborts request id. It reports whether the request was still being
// served.
func (f *Inflight) Cancel(id string) bool {
	f.mu.Lock()
	cancel, ok := f.cancels[id]
	delete(f.cancels, id)
	f.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Len returns the number of requests being served.
func (f *Inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}
