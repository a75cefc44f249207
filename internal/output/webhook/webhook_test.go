package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/crimson-sun/tipwatch/internal/model"
	"github.com/crimson-sun/tipwatch/internal/view"
)

func testView(total int) view.View {
	return view.View{
		Mode:     model.SortTime,
		Timeline: []model.Event{{ID: "1", Text: "[メッセージ] ：hello 【alice】"}},
		Total:    total,
	}
}

type recorder struct {
	mu       sync.Mutex
	received []view.View
	headers  []http.Header
}

func (r *recorder) handler(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	var v view.View
	json.Unmarshal(body, &v)
	r.mu.Lock()
	r.received = append(r.received, v)
	r.headers = append(r.headers, req.Header.Clone())
	r.mu.Unlock()
	w.WriteHeader(200)
}

func (r *recorder) views() []view.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]view.View(nil), r.received...)
}

func TestImmediatePost(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	out := New(srv.URL, WithFlushInterval(0), WithHeaders(map[string]string{"X-Token": "abc"}))
	if err := out.Render(context.Background(), testView(1)); err != nil {
		t.Fatalf("render: %v", err)
	}

	views := rec.views()
	if len(views) != 1 || views[0].Total != 1 {
		t.Fatalf("expected one posted view, got %+v", views)
	}
	if rec.headers[0].Get("X-Token") != "abc" {
		t.Fatal("custom header missing")
	}
	if rec.headers[0].Get("Content-Type") != "application/json" {
		t.Fatal("content type missing")
	}
}

func TestCoalescesWithinInterval(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	out := New(srv.URL, WithFlushInterval(50*time.Millisecond))
	for i := 1; i <= 5; i++ {
		out.Render(context.Background(), testView(i))
	}

	time.Sleep(200 * time.Millisecond)

	views := rec.views()
	if len(views) != 1 {
		t.Fatalf("expected 1 coalesced post, got %d", len(views))
	}
	if views[0].Total != 5 {
		t.Fatalf("expected the latest view, got total=%d", views[0].Total)
	}
}

func TestCloseFlushesPending(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	out := New(srv.URL, WithFlushInterval(time.Hour))
	out.Render(context.Background(), testView(3))
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if views := rec.views(); len(views) != 1 || views[0].Total != 3 {
		t.Fatalf("expected pending view posted on close, got %+v", views)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithFlushInterval(0), WithRetryBase(time.Millisecond))
	if err := out.Render(context.Background(), testView(1)); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestRetryOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithFlushInterval(0), WithRetryBase(time.Millisecond))
	if err := out.Render(context.Background(), testView(1)); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestRetryDelay(t *testing.T) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	if d := retryDelay(policy, "3"); d != 3*time.Second {
		t.Fatalf("retry-after: %v", d)
	}
	if d := retryDelay(policy, ""); d != 100*time.Millisecond {
		t.Fatalf("first: %v", d)
	}
	if d := retryDelay(policy, "soon"); d != 200*time.Millisecond {
		t.Fatalf("unparsable retry-after should fall back to policy, got %v", d)
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(400)
	}))
	defer srv.Close()

	out := New(srv.URL, WithFlushInterval(0), WithRetryBase(time.Millisecond))
	if err := out.Render(context.Background(), testView(1)); err == nil {
		t.Fatal("expected error on 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestTimerFlushErrorCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
	}))
	defer srv.Close()

	errs := make(chan error, 1)
	out := New(srv.URL,
		WithFlushInterval(10*time.Millisecond),
		WithOnError(func(err error) { errs <- err }))
	out.Render(context.Background(), testView(1))

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("error callback not invoked")
	}
}
