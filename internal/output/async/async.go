package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/tipwatch/internal/output"
	"github.com/crimson-sun/tipwatch/internal/view"
)

const (
	defaultBufferSize   = 16
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity. Default: 16.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner output's Render fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Render discard the oldest queued view when the buffer
// is full instead of blocking. Views are full snapshots, so a newer one
// supersedes whatever was dropped.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// Async decouples view production from slow outputs via a buffered channel.
// The pipeline renders into the channel; a background goroutine drains it
// to the wrapped output. Errors from the inner output are passed to errFunc
// rather than propagated to the caller.
type Async struct {
	inner      output.Output
	ch         chan view.View
	done       chan struct{}
	errFunc    func(error)
	bufSize    int
	dropOnFull bool
	closeOnce  sync.Once
}

// New wraps an output.Output in an async channel-based renderer.
// The background drain goroutine starts immediately.
func New(inner output.Output, opts ...Option) *Async {
	a := &Async{
		inner:   inner,
		bufSize: defaultBufferSize,
		errFunc: func(err error) { slog.Warn("async output render error", "error", err) },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan view.View, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Render sends the view into the channel. By default, blocks if the channel
// is full (backpressure).
func (a *Async) Render(_ context.Context, v view.View) error {
	if !a.dropOnFull {
		a.ch <- v
		return nil
	}
	for {
		select {
		case a.ch <- v:
			return nil
		default:
		}
		select {
		case <-a.ch:
			slog.Debug("async output buffer full, dropping oldest view")
		default:
		}
	}
}

// Close closes the channel, waits for the drain goroutine to finish
// (with a timeout), then closes the inner output.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.ch)
		select {
		case <-a.done:
		case <-time.After(defaultDrainTimeout):
			slog.Warn("async output drain timed out")
		}
		err = a.inner.Close()
	})
	return err
}

// drain reads views from the channel and renders them to the inner output.
func (a *Async) drain() {
	defer close(a.done)
	for v := range a.ch {
		if err := a.inner.Render(context.Background(), v); err != nil {
			a.errFunc(err)
		}
	}
}
