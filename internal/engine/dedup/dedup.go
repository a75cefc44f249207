package dedup

import (
	"log/slog"

	"github.com/crimson-sun/tipwatch/internal/model"
)

// Store holds the full event history keyed by server-assigned ID.
// Events keep their first-seen insertion order. Not safe for concurrent
// use; the pipeline loop is the only writer.
type Store struct {
	events []model.Event
	index  map[string]int // id -> position in events
}

// New creates an empty Store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Merge adds records whose IDs are not yet known. Records without an ID are
// rejected and logged; duplicates are dropped silently (first seen wins).
// Returns the number of newly added events.
func (s *Store) Merge(records []model.Record) int {
	added := 0
	for _, r := range records {
		if !r.HasID || r.ID == "" {
			slog.Warn("rejecting event without id", "text", r.Text)
			continue
		}
		if _, exists := s.index[r.ID]; exists {
			continue
		}
		s.index[r.ID] = len(s.events)
		s.events = append(s.events, model.Event{
			ID:        r.ID,
			Text:      r.Text,
			Timestamp: r.Timestamp,
			Kind:      r.Kind,
		})
		added++
	}
	return added
}

// Restore loads a persisted snapshot, keeping stored checked/rendered flags.
// The same ID rules as Merge apply. Returns the number of events loaded.
func (s *Store) Restore(events []model.Event) int {
	loaded := 0
	for _, e := range events {
		if e.ID == "" {
			slog.Warn("dropping stored event without id", "text", e.Text)
			continue
		}
		if _, exists := s.index[e.ID]; exists {
			continue
		}
		s.index[e.ID] = len(s.events)
		s.events = append(s.events, e)
		loaded++
	}
	return loaded
}

// MarkAllRendered flags every stored event as rendered.
func (s *Store) MarkAllRendered() {
	for i := range s.events {
		s.events[i].Rendered = true
	}
}

// HasPending reports whether any event has not been rendered yet.
func (s *Store) HasPending() bool {
	for _, e := range s.events {
		if !e.Rendered {
			return true
		}
	}
	return false
}

// RemoveWhere deletes every event matching pred, preserving the order of
// the survivors. Returns the number removed.
func (s *Store) RemoveWhere(pred func(model.Event) bool) int {
	kept := s.events[:0]
	removed := 0
	for _, e := range s.events {
		if pred(e) {
			delete(s.index, e.ID)
			removed++
			continue
		}
		s.index[e.ID] = len(kept)
		kept = append(kept, e)
	}
	// Clear the tail so removed events can be collected.
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = model.Event{}
	}
	s.events = kept
	return removed
}

// SetChecked sets one event's checked flag. Returns false if id is unknown.
func (s *Store) SetChecked(id string, value bool) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.events[i].Checked = value
	return true
}

// SetCheckedMany sets the checked flag of every known id. Unknown ids are
// skipped. Returns the number of events updated.
func (s *Store) SetCheckedMany(ids []string, value bool) int {
	n := 0
	for _, id := range ids {
		if s.SetChecked(id, value) {
			n++
		}
	}
	return n
}

// Toggle flips one event's checked flag and returns the new value.
// ok is false if id is unknown.
func (s *Store) Toggle(id string) (checked bool, ok bool) {
	i, ok := s.index[id]
	if !ok {
		return false, false
	}
	s.events[i].Checked = !s.events[i].Checked
	return s.events[i].Checked, true
}

// Get returns the event with the given id.
func (s *Store) Get(id string) (model.Event, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Event{}, false
	}
	return s.events[i], true
}

// Events returns a copy of all events in insertion order.
func (s *Store) Events() []model.Event {
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	return len(s.events)
}
