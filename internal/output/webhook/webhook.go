package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/crimson-sun/tipwatch/internal/output"
	"github.com/crimson-sun/tipwatch/internal/view"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
	defaultRetryBase     = time.Second
	maxRetries           = 3
)

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) { o.headers = h }
}

// WithFlushInterval sets how long views are coalesced before a POST.
// 0 posts every view immediately. Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Output) { o.flushInterval = d }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.client.Timeout = d }
}

// WithRetryBase sets the first retry delay; later delays double. Default: 1s.
func WithRetryBase(d time.Duration) Option {
	return func(o *Output) { o.retryBase = d }
}

// WithWidth truncates event texts to n display cells before posting.
func WithWidth(n int) Option {
	return func(o *Output) { o.width = n }
}

// WithOnError sets a callback invoked when a timer-triggered flush fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.errFunc = f }
}

// Output POSTs the latest view to an HTTP endpoint as a JSON object. Views
// arriving within flushInterval replace each other, so only the newest one
// is sent. Retries on 5xx with exponential backoff.
type Output struct {
	client        *http.Client
	url           string
	headers       map[string]string
	flushInterval time.Duration
	retryBase     time.Duration
	width         int
	errFunc       func(error)
	mu            sync.Mutex
	pending       *view.View
	timer         *time.Timer
}

// New creates a webhook output targeting the given URL.
func New(url string, opts ...Option) *Output {
	o := &Output{
		client:        &http.Client{Timeout: defaultTimeout},
		url:           url,
		flushInterval: defaultFlushInterval,
		retryBase:     defaultRetryBase,
		errFunc:       func(err error) { slog.Warn("webhook flush error", "error", err) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Render replaces the pending view. A timer is started on the first view
// of a window so the newest view is posted once the window closes.
func (o *Output) Render(_ context.Context, v view.View) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending = &v
	if o.flushInterval <= 0 {
		return o.flushLocked()
	}

	if o.timer == nil {
		o.timer = time.AfterFunc(o.flushInterval, func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.timer = nil
			if err := o.flushLocked(); err != nil {
				o.errFunc(err)
			}
		})
	}
	return nil
}

// Close posts any pending view and stops the timer.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	return o.flushLocked()
}

// flushLocked sends the pending view via HTTP POST. Caller must hold o.mu.
func (o *Output) flushLocked() error {
	if o.pending == nil {
		return nil
	}
	v := output.Format(*o.pending, o.width)
	o.pending = nil

	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	return o.postWithRetry(body)
}

// postWithRetry sends the body via HTTP POST with retry on 429 and 5xx.
func (o *Output) postWithRetry(body []byte) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.retryBase
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	var lastErr error
	var retryAfter string
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay(policy, retryAfter))
		}

		req, err := http.NewRequest(http.MethodPost, o.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range o.headers {
			req.Header.Set(k, v)
		}

		resp, err := o.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("webhook: HTTP %d", resp.StatusCode)

		retryAfter = ""
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter = resp.Header.Get("Retry-After")
			continue
		}
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}

// retryDelay returns the next policy delay unless the server sent a
// Retry-After in seconds.
func retryDelay(policy backoff.BackOff, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return policy.NextBackOff()
}
