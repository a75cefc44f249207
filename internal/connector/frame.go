package connector

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/crimson-sun/tipwatch/internal/model"
)

// ErrMalformedFrame is returned by DecodeFrame for payloads that are not a
// JSON object or are missing required fields.
var ErrMalformedFrame = errors.New("malformed frame")

// ErrUnknownFrame is returned by DecodeFrame for a well-formed frame with an
// unrecognized type.
var ErrUnknownFrame = errors.New("unknown frame type")

// DecodeFrame parses one push-channel payload:
//
//	{"type":"messages","messages":[{"id":"…","text":"…","timestamp":"…"}]}
//	{"type":"error","error":"…"}
//	{"type":"connected","session_id":"…"}
//	{"type":"disconnected"} / {"type":"keepalive"}
func DecodeFrame(data []byte) (model.Frame, error) {
	if !gjson.ValidBytes(data) {
		return model.Frame{}, ErrMalformedFrame
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return model.Frame{}, ErrMalformedFrame
	}

	frame := model.Frame{Type: model.FrameType(root.Get("type").String())}
	switch frame.Type {
	case model.FrameMessages:
		msgs := root.Get("messages")
		if !msgs.IsArray() {
			return model.Frame{}, fmt.Errorf("%w: messages is not an array", ErrMalformedFrame)
		}
		msgs.ForEach(func(_, v gjson.Result) bool {
			frame.Records = append(frame.Records, decodeRecord(v))
			return true
		})
	case model.FrameError:
		frame.Error = root.Get("error").String()
	case model.FrameConnected:
		frame.SessionID = root.Get("session_id").String()
	case model.FrameDisconnected, model.FrameKeepalive:
	default:
		return model.Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrame, frame.Type)
	}
	return frame, nil
}

func decodeRecord(v gjson.Result) model.Record {
	id := v.Get("id")
	hasID := id.Exists() && id.Type != gjson.Null
	return model.Record{
		ID:        id.String(),
		HasID:     hasID,
		Text:      v.Get("text").String(),
		Timestamp: v.Get("timestamp").String(),
		Kind:      v.Get("type").String(),
	}
}
