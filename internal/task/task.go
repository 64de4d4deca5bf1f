// Package task provides cancellable handles for asynchronous fetches.
package task

import (
	"context"
	"sync/atomic"
)

// Handle tracks one asynchronous unit of work. A nil *Handle is valid and
// behaves like work that already finished.
type Handle struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool
}

// Start runs fn in a new goroutine with a context derived from parent.
func Start(parent context.Context, fn func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer cancel()
		fn(ctx)
	}()
	return h
}

// Cancel asks the work to stop. It does not wait for it.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.cancelled.Store(true)
	h.cancel()
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	return h != nil && h.cancelled.Load()
}

// Done is closed once the work has returned.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return h.done
}

// Wait blocks until the work returns or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	if h == nil {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context returns the context the work runs with.
func (h *Handle) Context() context.Context {
	if h == nil {
		return context.Background()
	}
	return h.ctx
}
