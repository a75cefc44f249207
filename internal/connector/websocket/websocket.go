// Package websocket provides a monitoring source whose push channel is a
// websocket at ws(s)://<endpoint>/api/stream/{id}. Each text message carries
// one frame.
package websocket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crimson-sun/tipwatch/internal/connector"
	"github.com/crimson-sun/tipwatch/internal/connector/backend"
)

func init() {
	connector.Register("websocket", func(cfg connector.Config) connector.Source {
		return New(cfg)
	})
}

// Source streams frames over a websocket.
type Source struct {
	*backend.Control
	dialer *websocket.Dialer
}

// New creates a websocket source for cfg.Endpoint.
func New(cfg connector.Config) *Source {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	if cfg.Timeout > 0 {
		dialer.HandshakeTimeout = cfg.Timeout
	}
	return &Source{
		Control: backend.New(cfg),
		dialer:  &dialer,
	}
}

// Subscribe implements connector.Channel.
func (s *Source) Subscribe(ctx context.Context, sess connector.Session) (connector.Subscription, error) {
	wsURL := toWebsocketURL(s.StreamURL(sess))
	return connector.NewStream(ctx, func(ctx context.Context, emit func([]byte) bool) error {
		return s.read(ctx, wsURL, emit)
	}), nil
}

func (s *Source) read(ctx context.Context, wsURL string, emit func([]byte) bool) error {
	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return connector.ErrStreamClosed
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !emit(data) {
			return nil
		}
	}
}

// toWebsocketURL maps an http(s) URL onto the matching ws(s) scheme.
func toWebsocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
