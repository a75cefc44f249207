// Package subscription owns the lifecycle of one monitoring session: starting
// it remotely, reading its push channel, interpreting frames, and driving a
// bounded reconnect policy.
//
// Manager is not safe for concurrent use. All methods except Signals run on
// the caller's loop goroutine; transport goroutines only feed Signals.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/text/message"

	"github.com/crimson-sun/tipwatch/internal/clock"
	"github.com/crimson-sun/tipwatch/internal/connector"
	"github.com/crimson-sun/tipwatch/internal/connector/httpclient"
	"github.com/crimson-sun/tipwatch/internal/i18n"
	"github.com/crimson-sun/tipwatch/internal/model"
)

// ErrEmptyURL is returned by Start when no target URL is given.
var ErrEmptyURL = errors.New("subscription: empty url")

const (
	// DefaultMaxErrors is the number of consecutive channel failures that
	// end a session.
	DefaultMaxErrors = 3
	// DefaultRetryDelay is the wait before replacing a failed channel.
	DefaultRetryDelay = 5 * time.Second
)

// Sink receives decoded frame effects. Implemented by the engine.
type Sink interface {
	Merge(records []model.Record) int
	Refresh()
	HasPending() bool
}

// Reporter receives every status change.
type Reporter interface {
	Report(status model.Status)
}

// SignalKind distinguishes channel deliveries from reconnect timer fires.
type SignalKind int

const (
	SignalDelivery SignalKind = iota
	SignalReconnect
)

// Signal is an asynchronous input for Handle. Gen identifies the channel or
// timer that produced it; signals from a replaced generation are ignored.
type Signal struct {
	Gen      uint64
	Kind     SignalKind
	Delivery connector.Delivery
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithRetryPolicy sets the reconnect delay policy. Default: constant 5s.
func WithRetryPolicy(b backoff.BackOff) Option {
	return func(m *Manager) { m.retry = b }
}

// WithMaxErrors sets the consecutive failure threshold. Default: 3.
func WithMaxErrors(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxErrors = n
		}
	}
}

// WithPrinter sets the printer used for status text.
func WithPrinter(p *message.Printer) Option {
	return func(m *Manager) { m.printer = p }
}

// Manager is the session state machine.
type Manager struct {
	source    connector.Source
	sink      Sink
	reporter  Reporter
	clock     clock.Clock
	retry     backoff.BackOff
	maxErrors int
	printer   *message.Printer

	state   model.SessionState
	message string
	session connector.Session
	errors  int

	gen     uint64
	sub     connector.Subscription
	subQuit chan struct{}
	timer   clock.Timer

	signals   chan Signal
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an idle Manager.
func New(source connector.Source, sink Sink, reporter Reporter, opts ...Option) *Manager {
	m := &Manager{
		source:    source,
		sink:      sink,
		reporter:  reporter,
		clock:     clock.Real(),
		retry:     backoff.NewConstantBackOff(DefaultRetryDelay),
		maxErrors: DefaultMaxErrors,
		printer:   i18n.Printer(i18n.Default()),
		signals:   make(chan Signal, 64),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Signals yields channel deliveries and reconnect fires. Pass each one to
// Handle on the loop goroutine.
func (m *Manager) Signals() <-chan Signal {
	return m.signals
}

// State returns the current session state.
func (m *Manager) State() model.SessionState {
	return m.state
}

// SessionID returns the active session id, or "" when idle.
func (m *Manager) SessionID() string {
	return m.session.ID
}

// ErrorCount returns the number of consecutive channel failures.
func (m *Manager) ErrorCount() int {
	return m.errors
}

// Start begins monitoring target. A running session is stopped first.
func (m *Manager) Start(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		m.setStatus(m.state, m.printer.Sprintf(i18n.URLRequired))
		return ErrEmptyURL
	}
	if m.state != model.StateIdle {
		m.Stop(ctx)
	}

	m.setStatus(model.StateConnecting, "")
	sess, err := m.source.StartSession(ctx, target)
	if err != nil {
		msg := m.printer.Sprintf(i18n.StartFailed)
		var apiErr *httpclient.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		slog.Warn("start session failed", "url", target, "error", err)
		m.setStatus(model.StateIdle, msg)
		return fmt.Errorf("subscription start: %w", err)
	}

	m.session = sess
	m.errors = 0
	m.retry.Reset()
	slog.Info("session started", "session_id", sess.ID)
	m.openChannel(ctx)
	return nil
}

// Stop ends the session: the channel and any pending reconnect are torn
// down, the backend is notified best-effort, and the manager returns to
// Idle. Safe to call when already idle.
func (m *Manager) Stop(ctx context.Context) {
	if m.state == model.StateIdle && m.session.ID == "" && m.sub == nil && m.timer == nil {
		return
	}
	m.setStatus(model.StateStopping, m.message)
	m.teardown()

	if m.session.ID != "" {
		if err := m.source.StopSession(ctx, m.session.ID); err != nil {
			slog.Warn("stop session failed", "session_id", m.session.ID, "error", err)
		}
		slog.Info("session stopped", "session_id", m.session.ID)
	}
	m.session = connector.Session{}
	m.errors = 0
	m.retry.Reset()
	m.setStatus(model.StateIdle, m.message)
}

// Handle processes one signal from Signals.
func (m *Manager) Handle(ctx context.Context, sig Signal) {
	if sig.Gen != m.gen {
		return
	}
	switch sig.Kind {
	case SignalReconnect:
		m.timer = nil
		if m.session.ID == "" {
			return
		}
		slog.Info("reconnecting", "session_id", m.session.ID, "attempt", m.errors)
		m.openChannel(ctx)
	case SignalDelivery:
		if sig.Delivery.Err != nil {
			m.channelFailed(ctx, sig.Delivery.Err)
			return
		}
		m.handleFrame(ctx, sig.Delivery.Data)
	}
}

// Close releases the channel and timer without notifying the backend.
// Signals is not closed; pending senders are released.
func (m *Manager) Close() {
	m.teardown()
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Manager) handleFrame(ctx context.Context, data []byte) {
	// Any delivered payload proves the channel is alive, even one that
	// fails to decode.
	m.frameReceived()

	frame, err := connector.DecodeFrame(data)
	if err != nil {
		slog.Warn("dropping frame", "error", err, "bytes", len(data))
		return
	}

	switch frame.Type {
	case model.FrameMessages:
		added := m.sink.Merge(frame.Records)
		slog.Debug("messages received", "records", len(frame.Records), "added", added)
	case model.FrameError:
		slog.Warn("session error from backend", "session_id", m.session.ID, "error", frame.Error)
		m.message = frame.Error
		m.Stop(ctx)
	case model.FrameDisconnected:
		slog.Info("session disconnected by backend", "session_id", m.session.ID)
		m.Stop(ctx)
	case model.FrameConnected:
		m.setStatus(model.StateActive, "")
		m.sink.Refresh()
	case model.FrameKeepalive:
		if m.sink.HasPending() {
			m.sink.Refresh()
		}
	}
}

// frameReceived resets the failure streak after any received frame.
func (m *Manager) frameReceived() {
	if m.errors == 0 {
		return
	}
	m.errors = 0
	m.retry.Reset()
	if m.state == model.StateActive || m.state == model.StateConnecting {
		m.setStatus(m.state, "")
	}
}

func (m *Manager) channelFailed(ctx context.Context, err error) {
	m.closeChannel()
	m.errors++
	slog.Warn("channel error", "session_id", m.session.ID, "count", m.errors, "error", err)

	if m.errors >= m.maxErrors {
		m.message = m.printer.Sprintf(i18n.ConnectionLost)
		m.Stop(ctx)
		return
	}
	m.setStatus(m.state, m.printer.Sprintf(i18n.Retrying, m.errors, m.maxErrors))
	m.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect slot, replacing any pending
// timer. Bumping the generation invalidates leftovers from the old channel.
func (m *Manager) scheduleReconnect() {
	m.cancelTimer()
	m.gen++
	gen := m.gen
	delay := m.retry.NextBackOff()
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	m.timer = m.clock.AfterFunc(delay, func() {
		m.send(Signal{Gen: gen, Kind: SignalReconnect}, nil)
	})
}

func (m *Manager) openChannel(ctx context.Context) {
	m.closeChannel()
	m.cancelTimer()
	m.gen++
	gen := m.gen

	sub, err := m.source.Subscribe(ctx, m.session)
	if err != nil {
		m.channelFailed(ctx, err)
		return
	}
	quit := make(chan struct{})
	m.sub = sub
	m.subQuit = quit
	if m.state != model.StateActive {
		m.setStatus(model.StateConnecting, m.message)
	}
	go m.forward(gen, sub, quit)
}

func (m *Manager) forward(gen uint64, sub connector.Subscription, quit <-chan struct{}) {
	for d := range sub.Deliveries() {
		if !m.send(Signal{Gen: gen, Kind: SignalDelivery, Delivery: d}, quit) {
			return
		}
	}
}

func (m *Manager) send(sig Signal, quit <-chan struct{}) bool {
	select {
	case m.signals <- sig:
		return true
	case <-quit:
		return false
	case <-m.done:
		return false
	}
}

func (m *Manager) teardown() {
	m.closeChannel()
	m.cancelTimer()
	m.gen++
}

func (m *Manager) closeChannel() {
	if m.sub == nil {
		return
	}
	close(m.subQuit)
	if err := m.sub.Close(); err != nil {
		slog.Debug("channel close", "error", err)
	}
	m.sub = nil
	m.subQuit = nil
}

func (m *Manager) cancelTimer() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
}

func (m *Manager) setStatus(state model.SessionState, msg string) {
	m.state = state
	m.message = msg
	if m.reporter != nil {
		m.reporter.Report(model.Status{State: state, Message: msg})
	}
}
