package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/crimson-sun/tipwatch/internal/clock"
	"github.com/crimson-sun/tipwatch/internal/output"
	"github.com/crimson-sun/tipwatch/internal/view"
)

// RenderBuffer coalesces views on a timer window so a burst of frames
// produces one render. Only the latest view is kept. A zero window renders
// immediately.
type RenderBuffer struct {
	out    output.Output
	window time.Duration
	clock  clock.Clock
	fired  chan struct{}

	mu      sync.Mutex
	pending *view.View
	timer   clock.Timer
}

// NewRenderBuffer creates a RenderBuffer writing to out. The flush window is
// timed by clk; nil means the real clock.
func NewRenderBuffer(out output.Output, window time.Duration, clk clock.Clock) *RenderBuffer {
	if clk == nil {
		clk = clock.Real()
	}
	return &RenderBuffer{
		out:    out,
		window: window,
		clock:  clk,
		fired:  make(chan struct{}, 1),
	}
}

// Render implements engine.Renderer. It replaces the pending view and starts
// the flush timer if none is running.
func (b *RenderBuffer) Render(ctx context.Context, v view.View) error {
	if b.window <= 0 {
		return b.out.Render(ctx, v)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = &v
	if b.timer == nil {
		b.timer = b.clock.AfterFunc(b.window, func() {
			select {
			case b.fired <- struct{}{}:
			default:
			}
		})
	}
	return nil
}

// flushCh returns the channel signalled when the window elapses, or nil if
// no timer is armed.
func (b *RenderBuffer) flushCh() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		return nil
	}
	return b.fired
}

// flush writes the pending view, if any.
func (b *RenderBuffer) flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	select {
	case <-b.fired:
	default:
	}
	b.mu.Unlock()

	if pending == nil {
		return nil
	}
	return b.out.Render(ctx, *pending)
}

// Close flushes the pending view and closes the output.
func (b *RenderBuffer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flushErr := b.flush(ctx)
	if err := b.out.Close(); err != nil {
		return err
	}
	return flushErr
}
