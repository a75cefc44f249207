// Package sse provides the server-sent events monitoring source. Sessions are
// controlled through the backend HTTP API and frames arrive on
// GET /api/stream/{id} as text/event-stream.
package sse

import (
	"context"
	"fmt"
	"net/http"

	"github.com/crimson-sun/tipwatch/internal/connector"
	"github.com/crimson-sun/tipwatch/internal/connector/backend"
)

func init() {
	connector.Register("sse", func(cfg connector.Config) connector.Source {
		return New(cfg)
	})
}

// Source streams frames over server-sent events.
type Source struct {
	*backend.Control
	// Streams stay open indefinitely, so this client has no timeout.
	httpClient *http.Client
}

// New creates an SSE source for cfg.Endpoint.
func New(cfg connector.Config) *Source {
	return &Source{
		Control:    backend.New(cfg),
		httpClient: &http.Client{},
	}
}

// Subscribe implements connector.Channel.
func (s *Source) Subscribe(ctx context.Context, sess connector.Session) (connector.Subscription, error) {
	streamURL := s.StreamURL(sess)
	return connector.NewStream(ctx, func(ctx context.Context, emit func([]byte) bool) error {
		return s.read(ctx, streamURL, emit)
	}), nil
}

func (s *Source) read(ctx context.Context, streamURL string, emit func([]byte) bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sse connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sse connect: unexpected status %d", resp.StatusCode)
	}

	scanner := NewScanner(resp.Body)
	for scanner.Next() {
		if !emit([]byte(scanner.Event().Data)) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sse read: %w", err)
	}
	return connector.ErrStreamClosed
}
