package script

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueDepth   = 256
	defaultDrainTimeout = 5 * time.Second
)

// AsyncOption configures an Async sink.
type AsyncOption func(*Async)

// WithQueueDepth sets the buffered channel capacity.
func WithQueueDepth(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.depth = n
		}
	}
}

// WithErrorFunc sets the callback invoked when the inner sink fails.
func WithErrorFunc(fn func(Fragment, error)) AsyncOption {
	return func(a *Async) { a.onErr = fn }
}

// Async hands fragments to a single background worker so a slow sink (a
// file, the journal) never stalls the event consumer. Ordering is kept
// because there is exactly one worker.
type Async struct {
	inner Sink
	queue chan Fragment
	depth int
	onErr func(Fragment, error)

	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewAsync starts the worker that drains into inner.
func NewAsync(inner Sink, opts ...AsyncOption) *Async {
	a := &Async{
		inner: inner,
		depth: defaultQueueDepth,
		onErr: func(f Fragment, err error) {
			slog.Warn("script sink write failed", "seq", f.Seq, "err", err)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.queue = make(chan Fragment, a.depth)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run()
	}()
	return a
}

func (a *Async) run() {
	for f := range a.queue {
		if err := a.inner.Append(context.Background(), f); err != nil {
			a.onErr(f, err)
		}
	}
}

// Append enqueues f, blocking while the queue is full or until ctx ends.
func (a *Async) Append(ctx context.Context, f Fragment) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLen returns how many fragments are waiting.
func (a *Async) QueueLen() int { return len(a.queue) }

// Close stops accepting fragments and waits for the queue to drain.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(defaultDrainTimeout):
			slog.Warn("script sink drain timed out", "pending", len(a.queue))
		}
	})
	return nil
}
