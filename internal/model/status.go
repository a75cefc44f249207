package model

import "fmt"

// SessionState is the lifecycle state of a monitoring session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateActive
	StateStopping
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Status is the single user-facing status slot. Message holds the latest
// error or progress text and is replaced on every report.
type Status struct {
	State   SessionState `json:"state"`
	Message string       `json:"message,omitempty"`
}

// MarshalText renders the state by name in JSON snapshots.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *SessionState) UnmarshalText(text []byte) error {
	for _, st := range []SessionState{StateIdle, StateConnecting, StateActive, StateStopping} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
