package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPostJSON_Success(t *testing.T) {
	var gotBody map[string]string
	var gotMethod, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session_id":"abc"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	var dest struct {
		SessionID string `json:"session_id"`
	}
	err := c.PostJSON(context.Background(), "/api/start-monitoring", map[string]string{"url": "https://example.com"}, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.SessionID != "abc" {
		t.Fatalf("unexpected result: %+v", dest)
	}
	if gotMethod != http.MethodPost || gotType != "application/json" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotType)
	}
	if gotBody["url"] != "https://example.com" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestPostJSON_NilDest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"stopped"}`))
	}))
	defer srv.Close()

	if err := New(srv.URL).PostJSON(context.Background(), "/stop", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPostJSON_APIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":"URLが必要です"}`))
	}))
	defer srv.Close()

	err := New(srv.URL).PostJSON(context.Background(), "/bad", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 400 {
		t.Fatalf("expected status 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "URLが必要です" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestPostJSON_APIErrorPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`not found`))
	}))
	defer srv.Close()

	err := New(srv.URL).PostJSON(context.Background(), "/x", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "" || apiErr.Body != "not found" {
		t.Fatalf("unexpected error fields %+v", apiErr)
	}
}

func TestPostJSON_ServerErrorRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(502)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryBase(time.Millisecond))
	var dest struct {
		OK bool `json:"ok"`
	}
	if err := c.PostJSON(context.Background(), "/", nil, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dest.OK || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got ok=%v calls=%d", dest.OK, calls.Load())
	}
}

func TestPostJSON_MaxRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(500)
		w.Write([]byte(`{"error":"internal"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithMaxRetries(2), WithRetryBase(time.Millisecond))
	err := c.PostJSON(context.Background(), "/", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestPostJSON_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(404)
	}))
	defer srv.Close()

	New(srv.URL, WithRetryBase(time.Millisecond)).PostJSON(context.Background(), "/", nil, nil)
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestPostJSON_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(srv.URL, WithRetryBase(time.Hour))
	err := c.PostJSON(ctx, "/", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryDelay(t *testing.T) {
	policy := New("http://unused").retryPolicy()
	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		if d := retryDelay(policy, nil); d != want {
			t.Fatalf("attempt %d: got %v, want %v", i+1, d, want)
		}
	}

	policy = New("http://unused").retryPolicy()
	rl := &APIError{StatusCode: 429, retryAfter: "7"}
	if d := retryDelay(policy, rl); d != 7*time.Second {
		t.Fatalf("retry-after: %v", d)
	}
	// Retry-After does not consume a policy step.
	if d := retryDelay(policy, nil); d != time.Second {
		t.Fatalf("after retry-after: %v", d)
	}
}
