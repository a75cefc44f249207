package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crimson-sun/tipwatch/internal/clock"
	"github.com/crimson-sun/tipwatch/internal/connector"
	"github.com/crimson-sun/tipwatch/internal/engine"
	"github.com/crimson-sun/tipwatch/internal/model"
	"github.com/crimson-sun/tipwatch/internal/settings"
	"github.com/crimson-sun/tipwatch/internal/subscription"
	"github.com/crimson-sun/tipwatch/internal/view"
)

// --- mocks ---

type mockOutput struct {
	mu     sync.Mutex
	views  []view.View
	closed bool
}

func (m *mockOutput) Render(_ context.Context, v view.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views = append(m.views, v)
	return nil
}

func (m *mockOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockOutput) Views() []view.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]view.View, len(m.views))
	copy(out, m.views)
	return out
}

// waitFor polls until pred holds for the latest view.
func (m *mockOutput) waitFor(t *testing.T, what string, pred func(view.View) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if vs := m.Views(); len(vs) > 0 && pred(vs[len(vs)-1]) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type mockSub struct {
	ch   chan connector.Delivery
	once sync.Once
}

func (s *mockSub) Deliveries() <-chan connector.Delivery { return s.ch }

func (s *mockSub) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

type mockSource struct {
	mu       sync.Mutex
	startErr error
	stopped  []string
	subs     chan *mockSub
}

func newMockSource() *mockSource {
	return &mockSource{subs: make(chan *mockSub, 4)}
}

func (m *mockSource) StartSession(_ context.Context, _ string) (connector.Session, error) {
	if m.startErr != nil {
		return connector.Session{}, m.startErr
	}
	return connector.Session{ID: "sess-1"}, nil
}

func (m *mockSource) StopSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, id)
	return nil
}

func (m *mockSource) Stopped() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stopped...)
}

func (m *mockSource) Subscribe(_ context.Context, _ connector.Session) (connector.Subscription, error) {
	sub := &mockSub{ch: make(chan connector.Delivery, 8)}
	m.subs <- sub
	return sub, nil
}

func (m *mockSource) nextSub(t *testing.T) *mockSub {
	t.Helper()
	select {
	case s := <-m.subs:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription opened")
		return nil
	}
}

type fixture struct {
	src   *mockSource
	out   *mockOutput
	store *settings.Memory
	clock *clock.Fake
	eng   *engine.Engine
	p     *Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		src:   newMockSource(),
		out:   &mockOutput{},
		store: settings.NewMemory(),
		clock: clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	buf := NewRenderBuffer(f.out, 0, f.clock)
	f.eng = engine.New(engine.WithSettings(f.store), engine.WithRenderer(buf))
	mgr := subscription.New(f.src, f.eng, f.eng, subscription.WithClock(f.clock))
	f.p = New(f.eng, mgr, buf, append([]Option{WithClock(f.clock)}, opts...)...)
	return f
}

func (f *fixture) run(ctx context.Context, url string) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- f.p.Run(ctx, url) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func push(s *mockSub, data string) { s.ch <- connector.Delivery{Data: []byte(data)} }

// --- pipeline tests ---

func TestRun_StreamsIntoView(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := f.run(ctx, "https://example.com/room")

	sub := f.src.nextSub(t)
	push(sub, `{"type":"connected","session_id":"sess-1"}`)
	push(sub, `{"type":"messages","messages":[{"id":"1","text":"[メッセージ] ：hi 【alice】","timestamp":"2024-01-01T00:00:00Z"}]}`)

	f.out.waitFor(t, "one event", func(v view.View) bool { return v.Len() == 1 })
	f.out.waitFor(t, "active status", func(v view.View) bool { return v.Status.State == model.StateActive })

	cancel()
	if err := waitErr(t, errc); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := f.src.Stopped(); len(got) != 1 || got[0] != "sess-1" {
		t.Fatalf("expected remote stop on exit, got %v", got)
	}

	var events []model.Event
	found, err := f.store.Get(context.Background(), settings.KeyEvents, &events)
	if err != nil || !found || len(events) != 1 {
		t.Fatalf("expected persisted history, got %v %v %+v", found, err, events)
	}
}

func TestSubmit_RunsOnLoop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := f.run(ctx, "")

	if err := f.p.Submit(func(e *engine.Engine) { e.SetSortMode(model.SortGroup) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.out.waitFor(t, "group mode", func(v view.View) bool { return v.Mode == model.SortGroup })

	cancel()
	waitErr(t, errc)

	if err := f.p.Submit(func(*engine.Engine) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Run returned, got %v", err)
	}
}

func TestStartStopCommands(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := f.run(ctx, "")

	if err := f.p.Start("https://example.com/room"); err != nil {
		t.Fatal(err)
	}
	sub := f.src.nextSub(t)
	push(sub, `{"type":"connected","session_id":"sess-1"}`)
	f.out.waitFor(t, "active", func(v view.View) bool { return v.Status.State == model.StateActive })

	if err := f.p.Stop(); err != nil {
		t.Fatal(err)
	}
	f.out.waitFor(t, "idle", func(v view.View) bool { return v.Status.State == model.StateIdle })

	cancel()
	waitErr(t, errc)
	if got := f.src.Stopped(); len(got) != 1 {
		t.Fatalf("expected exactly one remote stop, got %v", got)
	}
}

func TestRun_ExitOnIdle(t *testing.T) {
	f := newFixture(t, WithExitOnIdle(true))
	errc := f.run(context.Background(), "https://example.com/room")

	sub := f.src.nextSub(t)
	push(sub, `{"type":"connected","session_id":"sess-1"}`)
	push(sub, `{"type":"disconnected"}`)

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}

func TestRun_ExitOnIdleStartFailure(t *testing.T) {
	f := newFixture(t, WithExitOnIdle(true))
	f.src.startErr = errors.New("backend down")

	err := waitErr(t, f.run(context.Background(), "https://example.com/room"))
	if err == nil {
		t.Fatal("expected start error")
	}
	v := f.out.Views()
	if got := v[len(v)-1].Status.Message; got != "モニタリングの開始に失敗しました" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestRun_TickRendersPendingEvents(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := f.run(ctx, "https://example.com/room")

	sub := f.src.nextSub(t)
	push(sub, `{"type":"connected","session_id":"sess-1"}`)
	f.out.waitFor(t, "active", func(v view.View) bool { return v.Status.State == model.StateActive })

	// Unrendered history arrives out of band, as after a reload.
	f.store.Set(context.Background(), settings.KeyEvents, []model.Event{
		{ID: "x", Text: "late", Timestamp: "2024-01-01T00:00:00Z"},
	})
	loaded := make(chan struct{})
	f.p.Submit(func(e *engine.Engine) {
		e.Load(context.Background())
		close(loaded)
	})
	<-loaded

	f.clock.Advance(DefaultTickInterval)
	f.out.waitFor(t, "tick render", func(v view.View) bool { return v.Len() == 1 })

	cancel()
	waitErr(t, errc)
}

// --- RenderBuffer tests ---

func newTestClock() *clock.Fake {
	return clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestRenderBuffer_Coalesces(t *testing.T) {
	out := &mockOutput{}
	clk := newTestClock()
	buf := NewRenderBuffer(out, 200*time.Millisecond, clk)

	for i := 0; i < 5; i++ {
		buf.Render(context.Background(), view.View{Total: i})
	}
	if len(out.Views()) != 0 {
		t.Fatal("buffered renders should wait for the window")
	}
	if clk.Pending() != 1 {
		t.Fatalf("expected one armed timer, got %d", clk.Pending())
	}

	clk.Advance(199 * time.Millisecond)
	select {
	case <-buf.flushCh():
		t.Fatal("flush fired before the window elapsed")
	default:
	}

	clk.Advance(time.Millisecond)
	select {
	case <-buf.flushCh():
	default:
		t.Fatal("flush timer didn't fire")
	}
	if err := buf.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	views := out.Views()
	if len(views) != 1 || views[0].Total != 4 {
		t.Fatalf("expected only the latest view, got %+v", views)
	}
	if buf.flushCh() != nil {
		t.Fatal("timer should be cleared after flush")
	}
}

func TestRenderBuffer_FlushBeforeWindowDisarms(t *testing.T) {
	out := &mockOutput{}
	clk := newTestClock()
	buf := NewRenderBuffer(out, time.Second, clk)

	buf.Render(context.Background(), view.View{Total: 1})
	if err := buf.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if clk.Pending() != 0 {
		t.Fatalf("flush should stop the timer, %d still armed", clk.Pending())
	}

	clk.Advance(time.Second)
	buf.Render(context.Background(), view.View{Total: 2})
	select {
	case <-buf.flushCh():
		t.Fatal("stale signal from the stopped timer")
	default:
	}
	if len(out.Views()) != 1 {
		t.Fatalf("expected 1 render, got %d", len(out.Views()))
	}
}

func TestRenderBuffer_ZeroWindowPassThrough(t *testing.T) {
	out := &mockOutput{}
	clk := newTestClock()
	buf := NewRenderBuffer(out, 0, clk)

	buf.Render(context.Background(), view.View{Total: 1})
	buf.Render(context.Background(), view.View{Total: 2})

	if len(out.Views()) != 2 {
		t.Fatalf("expected 2 direct renders, got %d", len(out.Views()))
	}
	if buf.flushCh() != nil || clk.Pending() != 0 {
		t.Fatal("zero window should never arm a timer")
	}
}

func TestRenderBuffer_CloseFlushes(t *testing.T) {
	out := &mockOutput{}
	buf := NewRenderBuffer(out, time.Hour, newTestClock())
	buf.Render(context.Background(), view.View{Total: 7})

	if err := buf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	views := out.Views()
	if len(views) != 1 || views[0].Total != 7 {
		t.Fatalf("expected pending view flushed on close, got %+v", views)
	}
	if !out.closed {
		t.Fatal("output not closed")
	}
}
