package tipwatch

import "time"

// Record is an inbound chat event. Records without an ID are ignored.
type Record struct {
	ID        string
	Text      string
	Timestamp time.Time // zero = time.Now()
}

// Event is a stored chat event with its extracted fields.
// This is the stable public type; internal representations may change.
type Event struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category,omitempty"` // bracketed tag, e.g. "メッセージ"
	Actor     string    `json:"actor"`              // full-width bracketed label, or "Unknown"
	GroupKey  string    `json:"groupKey,omitempty"` // empty when the text is not groupable
	Checked   bool      `json:"checked"`
}

// Group is one grouping topic with one row per actor.
type Group struct {
	Key    string `json:"key"`
	Header string `json:"header"` // "(3件 / 2ユーザー)"
	Cap    int    `json:"cap"`    // 0 = unlimited
	Rows   []Row  `json:"rows"`
}

// Row is one actor's latest event within a group.
type Row struct {
	Actor     string `json:"actor"`
	Event     Event  `json:"event"`
	Count     int    `json:"count"`
	OverLimit bool   `json:"overLimit"`
}

// Snapshot is the projected state after filtering.
type Snapshot struct {
	Mode     string  `json:"mode"`
	Timeline []Event `json:"timeline,omitempty"`
	Groups   []Group `json:"groups,omitempty"`
	Total    int     `json:"total"`
}
