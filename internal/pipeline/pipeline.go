package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crimson-sun/tipwatch/internal/clock"
	"github.com/crimson-sun/tipwatch/internal/engine"
	"github.com/crimson-sun/tipwatch/internal/model"
	"github.com/crimson-sun/tipwatch/internal/subscription"
)

// ErrClosed is returned by Submit once Run has returned.
var ErrClosed = errors.New("pipeline closed")

// DefaultTickInterval is the liveness tick used to catch unrendered events.
const DefaultTickInterval = 5 * time.Second

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock driving the liveness ticker.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithTickInterval sets the liveness tick interval.
func WithTickInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithExitOnIdle makes Run return once the session goes idle.
func WithExitOnIdle(exit bool) Option {
	return func(p *Pipeline) { p.exitOnIdle = exit }
}

// WithShutdownTimeout bounds the remote stop and final persist on exit.
func WithShutdownTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.shutdownTimeout = d
		}
	}
}

// Pipeline runs the engine, the session manager and the render buffer on a
// single goroutine. Every mutation reaches the engine through that loop.
type Pipeline struct {
	engine  *engine.Engine
	manager *subscription.Manager
	buffer  *RenderBuffer

	clock           clock.Clock
	interval        time.Duration
	exitOnIdle      bool
	shutdownTimeout time.Duration

	commands chan func(context.Context)
	done     chan struct{}
}

// New creates a Pipeline from the given components. buf may be nil when the
// engine renders directly.
func New(eng *engine.Engine, mgr *subscription.Manager, buf *RenderBuffer, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:          eng,
		manager:         mgr,
		buffer:          buf,
		clock:           clock.Real(),
		interval:        DefaultTickInterval,
		shutdownTimeout: 10 * time.Second,
		commands:        make(chan func(context.Context)),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit queues fn to run against the engine on the loop goroutine. It
// blocks until the loop accepts it.
func (p *Pipeline) Submit(fn func(*engine.Engine)) error {
	return p.submit(func(context.Context) { fn(p.engine) })
}

// Start queues a session start for url.
func (p *Pipeline) Start(url string) error {
	return p.submit(func(ctx context.Context) {
		if err := p.manager.Start(ctx, url); err != nil {
			slog.Warn("start failed", "error", err)
		}
	})
}

// Stop queues a session stop.
func (p *Pipeline) Stop() error {
	return p.submit(func(ctx context.Context) { p.manager.Stop(ctx) })
}

// Done is closed once Run has returned.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) submit(cmd func(context.Context)) error {
	select {
	case p.commands <- cmd:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// Run renders the loaded history, starts a session for url (if non-empty),
// and processes signals, commands and ticks until ctx is cancelled or, with
// WithExitOnIdle, the session ends. On exit the session is stopped and the
// engine writes its final snapshot.
func (p *Pipeline) Run(ctx context.Context, url string) (err error) {
	defer close(p.done)
	defer func() {
		if shutdownErr := p.shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	ticks, stopTicker := p.clock.NewTicker(p.interval)
	defer stopTicker()

	p.engine.Refresh()

	if url != "" {
		if startErr := p.manager.Start(ctx, url); startErr != nil && p.exitOnIdle {
			return fmt.Errorf("pipeline start: %w", startErr)
		}
	}

	for {
		var flush <-chan struct{}
		if p.buffer != nil {
			flush = p.buffer.flushCh()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-p.manager.Signals():
			p.manager.Handle(ctx, sig)
		case cmd := <-p.commands:
			cmd(ctx)
		case <-ticks:
			if p.manager.State() != model.StateIdle {
				p.engine.Tick()
			}
		case <-flush:
			if err := p.buffer.flush(ctx); err != nil {
				slog.Warn("render failed", "error", err)
			}
		}

		if p.exitOnIdle && p.manager.State() == model.StateIdle {
			return nil
		}
	}
}

func (p *Pipeline) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shutdownTimeout)
	defer cancel()

	p.manager.Stop(ctx)
	p.manager.Close()

	err := p.engine.Close(ctx)
	if err != nil {
		slog.Warn("final persist failed", "error", err)
	}
	if p.buffer != nil {
		if flushErr := p.buffer.flush(ctx); flushErr != nil {
			slog.Warn("render failed", "error", flushErr)
		}
	}
	return err
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	if p.buffer == nil {
		return nil
	}
	return p.buffer.Close()
}
