// Package backend implements session control against the monitoring
// backend's HTTP API. Stream providers embed Control and add their own
// push channel.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/crimson-sun/tipwatch/internal/connector"
	"github.com/crimson-sun/tipwatch/internal/connector/httpclient"
)

const (
	startPath = "/api/start-monitoring"
	stopPath  = "/api/stop-monitoring/"
	// StreamPath prefixes the per-session push channel path.
	StreamPath = "/api/stream/"
)

// ErrNoSession is returned when the backend accepts a start request but
// reports no session id.
var ErrNoSession = errors.New("backend returned no session id")

type startRequest struct {
	URL string `json:"url"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	StreamURL string `json:"stream_url"`
}

// Control starts and stops sessions over HTTP.
type Control struct {
	endpoint string
	base     *url.URL // parsed endpoint; nil when unparsable
	client   *httpclient.Client
}

// New creates a Control for cfg.Endpoint.
func New(cfg connector.Config) *Control {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	var opts []httpclient.Option
	if cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(cfg.Timeout))
	}
	// Start creates server-side state; one retry covers a transient 5xx
	// without piling up orphaned sessions.
	opts = append(opts, httpclient.WithMaxRetries(1))
	base, err := url.Parse(endpoint + "/")
	if err != nil {
		base = nil
	}
	return &Control{
		endpoint: endpoint,
		base:     base,
		client:   httpclient.New(endpoint, opts...),
	}
}

// StartSession implements connector.SessionControl.
func (c *Control) StartSession(ctx context.Context, target string) (connector.Session, error) {
	var resp startResponse
	if err := c.client.PostJSON(ctx, startPath, startRequest{URL: target}, &resp); err != nil {
		return connector.Session{}, fmt.Errorf("start session: %w", err)
	}
	if resp.SessionID == "" {
		return connector.Session{}, ErrNoSession
	}
	return connector.Session{ID: resp.SessionID, StreamURL: resp.StreamURL}, nil
}

// StopSession implements connector.SessionControl.
func (c *Control) StopSession(ctx context.Context, sessionID string) error {
	if err := c.client.PostJSON(ctx, stopPath+url.PathEscape(sessionID), nil, nil); err != nil {
		return fmt.Errorf("stop session %s: %w", sessionID, err)
	}
	return nil
}

// StreamURL returns the absolute push channel URL for sess. The stream_url
// the backend returned is resolved against the endpoint; without one the
// conventional /api/stream/{id} path is used.
func (c *Control) StreamURL(sess connector.Session) string {
	fallback := c.endpoint + StreamPath + url.PathEscape(sess.ID)
	if sess.StreamURL == "" || c.base == nil {
		return fallback
	}
	ref, err := url.Parse(sess.StreamURL)
	if err != nil {
		return fallback
	}
	return c.base.ResolveReference(ref).String()
}
