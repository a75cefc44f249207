package model

import "time"

// Event is one chat event held in the store. ID, Text, Timestamp and Kind
// come from the source; Checked and Rendered are owned locally.
type Event struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Kind      string `json:"type,omitempty"` // server-side type label, informational only
	Checked   bool   `json:"checked"`
	Rendered  bool   `json:"rendered"`
}

// Time parses the event timestamp. Unparsable values yield the zero time so
// they sort after everything else in recency order.
func (e Event) Time() time.Time {
	return ParseTimestamp(e.Timestamp)
}

// Record is an inbound event as decoded from a messages frame, before it
// has been accepted by the store.
type Record struct {
	ID        string
	HasID     bool
	Text      string
	Timestamp string
	Kind      string
}

// timestampLayouts lists the accepted ISO forms. The monitoring backend
// emits naive local timestamps without an offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp, returning the zero time on failure.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
