package connector

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed is delivered when the remote side ends a stream without
// reporting an error.
var ErrStreamClosed = errors.New("stream closed by remote")

// ReadFunc reads one connection until it fails or ctx is cancelled. It hands
// each payload to emit; emit reports false once the subscription is closed.
type ReadFunc func(ctx context.Context, emit func([]byte) bool) error

type stream struct {
	out    chan Delivery
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewStream runs read on its own goroutine and exposes it as a Subscription.
// A read failure is delivered once as an error Delivery, after which the
// channel is closed. Cancellation through Close is not reported.
func NewStream(ctx context.Context, read ReadFunc) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		out:    make(chan Delivery, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, read)
	return s
}

func (s *stream) run(ctx context.Context, read ReadFunc) {
	defer close(s.done)
	defer close(s.out)

	emit := func(data []byte) bool {
		select {
		case s.out <- Delivery{Data: data}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := read(ctx, emit)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = ErrStreamClosed
	}
	select {
	case s.out <- Delivery{Err: err}:
	case <-ctx.Done():
	}
}

func (s *stream) Deliveries() <-chan Delivery {
	return s.out
}

func (s *stream) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}
