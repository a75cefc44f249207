package model

// FrameType tags one unit pushed over the live channel.
type FrameType string

const (
	FrameMessages     FrameType = "messages"
	FrameError        FrameType = "error"
	FrameDisconnected FrameType = "disconnected"
	FrameConnected    FrameType = "connected"
	FrameKeepalive    FrameType = "keepalive"
)

// Frame is a decoded push-channel frame.
type Frame struct {
	Type      FrameType
	Records   []Record // messages only
	Error     string   // error only
	SessionID string   // connected only
}
