package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/crimson-sun/tipwatch/internal/model"
	"github.com/crimson-sun/tipwatch/internal/view"
)

// mockOutput records calls for test assertions.
type mockOutput struct {
	views  []view.View
	closed bool
	err    error // if set, Render and Close return this error
}

func (m *mockOutput) Render(_ context.Context, v view.View) error {
	m.views = append(m.views, v)
	return m.err
}

func (m *mockOutput) Close() error {
	m.closed = true
	return m.err
}

func testView(total int) view.View {
	return view.View{Mode: model.SortTime, Total: total}
}

func TestFanOutDeliversToAll(t *testing.T) {
	a, b := &mockOutput{}, &mockOutput{}
	m := New(a, b)

	if err := m.Render(context.Background(), testView(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.views) != 1 || len(b.views) != 1 {
		t.Fatalf("expected both outputs to receive the view, got %d and %d", len(a.views), len(b.views))
	}
}

func TestErrorDoesNotPreventDelivery(t *testing.T) {
	errA := errors.New("a failed")
	a, b := &mockOutput{err: errA}, &mockOutput{}
	m := New(a, b)

	err := m.Render(context.Background(), testView(1))
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error containing a's failure, got %v", err)
	}
	if len(b.views) != 1 {
		t.Fatal("b should still receive the view")
	}
}

func TestCloseCallsAllOutputs(t *testing.T) {
	a, b := &mockOutput{}, &mockOutput{}
	if err := New(a, b).Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatal("expected both outputs closed")
	}
}

func TestCloseCollectsErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	err := New(&mockOutput{err: errA}, &mockOutput{err: errB}).Close()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors, got %v", err)
	}
}

func TestSingleOutputIdentity(t *testing.T) {
	a := &mockOutput{}
	m := New(a)
	m.Render(context.Background(), testView(7))
	if len(a.views) != 1 || a.views[0].Total != 7 {
		t.Fatalf("unexpected views %+v", a.views)
	}
}
