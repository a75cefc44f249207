package connector

import (
	"context"
	"time"
)

// Source is a monitoring backend: it controls remote sessions and streams
// their frames.
type Source interface {
	SessionControl
	Channel
}

// SessionControl starts and stops remote monitoring sessions.
type SessionControl interface {
	// StartSession asks the backend to start monitoring url.
	StartSession(ctx context.Context, url string) (Session, error)

	// StopSession tells the backend the session is ending. Best-effort.
	StopSession(ctx context.Context, sessionID string) error
}

// Channel opens push subscriptions scoped to a session.
type Channel interface {
	// Subscribe opens the push channel of sess. It returns without
	// waiting for the connection; connection failures arrive as a Delivery
	// with Err set, after which the subscription is finished.
	Subscribe(ctx context.Context, sess Session) (Subscription, error)
}

// Subscription is a cancellable handle on one push channel.
type Subscription interface {
	// Deliveries yields raw frames in the order sent. It is closed after an
	// error delivery or once Close is called.
	Deliveries() <-chan Delivery

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// Delivery is one raw frame payload or a transport failure.
type Delivery struct {
	Data []byte
	Err  error
}

// Session is a started remote session.
type Session struct {
	ID        string
	StreamURL string
}

// Config holds provider connection settings.
type Config struct {
	Provider string
	Endpoint string        // base URL of the monitoring backend
	Timeout  time.Duration // per request timeout for session control calls
}
