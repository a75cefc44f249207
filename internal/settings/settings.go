// Package settings provides the durable key/value store that holds the
// filter configuration, group limits, and the event history snapshot.
//
// Values are encoded with deterministic CBOR, so the same logical value
// always produces the same bytes regardless of backend.
package settings

import (
	"context"
	"errors"
	"sync"
)

// Keys used by the engine.
const (
	KeyFilter      = "filter"
	KeyGroupLimits = "groupLimits"
	KeyEvents      = "events"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("settings: store is closed")

// Store reads and writes structured values by string key.
type Store interface {
	// Get decodes the value stored under key into dest. found is false
	// (and dest untouched) when the key is absent.
	Get(ctx context.Context, key string, dest any) (found bool, err error)

	// Set encodes value and stores it under key, replacing any prior value.
	Set(ctx context.Context, key string, value any) error

	Close() error
}

// Memory is an in-process Store. Useful for tests and for running without
// persistence.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string, dest any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	data, ok := m.values[key]
	if !ok {
		return false, nil
	}
	if err := unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[key] = data
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
