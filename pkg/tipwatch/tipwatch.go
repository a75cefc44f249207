package tipwatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/crimson-sun/tipwatch/internal/engine"
	"github.com/crimson-sun/tipwatch/internal/engine/pattern"
	"github.com/crimson-sun/tipwatch/internal/i18n"
	"github.com/crimson-sun/tipwatch/internal/model"
	"github.com/crimson-sun/tipwatch/internal/view"
)

// Digest holds an in-memory event store and its projection.
type Digest struct {
	mu     sync.Mutex
	engine *engine.Engine
}

// New creates a Digest. Invalid sort modes and group limits are reported as
// errors rather than silently ignored.
func New(opts ...Option) (*Digest, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	eng := engine.New(engine.WithPrinter(i18n.Printer(i18n.ParseTag(o.language))))

	cfg := model.DefaultFilterConfig()
	mode, err := model.ParseSortMode(o.sortMode)
	if err != nil {
		return nil, fmt.Errorf("tipwatch: %w", err)
	}
	cfg.Sort = mode
	for _, c := range o.hidden {
		cfg = cfg.WithCategory(model.Category(c), true)
	}
	if len(o.excludeWords) > 0 {
		cfg.ExcludeWords = o.excludeWords
		cfg.HideExcluded = true
	}
	eng.SetFilter(cfg)

	for key, limit := range o.limits {
		if err := eng.SetGroupLimit(model.GroupKey(key), model.Cap(limit)); err != nil {
			return nil, fmt.Errorf("tipwatch: group %q: %w", key, err)
		}
	}
	return &Digest{engine: eng}, nil
}

// Classify extracts the category, actor and group key of a single text.
func Classify(text string) Event {
	f := pattern.Extract(text)
	ev := Event{
		Text:     text,
		Category: string(f.Category),
		Actor:    f.ActorOrUnknown(),
	}
	if key, ok := f.GroupKey(); ok {
		ev.GroupKey = string(key)
	}
	return ev
}

// Add merges records into the store. Duplicate IDs are ignored. Returns the
// number of events added.
func (d *Digest) Add(records ...Record) int {
	in := make([]model.Record, len(records))
	now := time.Now()
	for i, r := range records {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = now
		}
		in[i] = model.Record{
			ID:        r.ID,
			HasID:     r.ID != "",
			Text:      r.Text,
			Timestamp: ts.Format(time.RFC3339Nano),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.Merge(in)
}

// Check toggles the checked flag of event id. Returns the new state and
// whether the event exists.
func (d *Digest) Check(id string) (checked bool, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.ToggleChecked(id)
}

// RemoveChecked deletes every checked event and returns how many were removed.
func (d *Digest) RemoveChecked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.RemoveChecked()
}

// Snapshot returns the current projection.
func (d *Digest) Snapshot() Snapshot {
	d.mu.Lock()
	v := d.engine.View()
	d.mu.Unlock()
	return snapshotFromView(v)
}

func snapshotFromView(v view.View) Snapshot {
	s := Snapshot{Mode: string(v.Mode), Total: v.Total}
	for _, ev := range v.Timeline {
		s.Timeline = append(s.Timeline, eventFromModel(ev))
	}
	for _, g := range v.Groups {
		pg := Group{Key: string(g.Key), Header: g.Header, Cap: int(g.Cap)}
		for _, r := range g.Rows {
			pg.Rows = append(pg.Rows, Row{
				Actor:     r.Actor,
				Event:     eventFromModel(r.Event),
				Count:     r.Count,
				OverLimit: r.OverLimit,
			})
		}
		s.Groups = append(s.Groups, pg)
	}
	return s
}

// eventFromModel converts the internal event to the public Event type.
func eventFromModel(ev model.Event) Event {
	out := Classify(ev.Text)
	out.ID = ev.ID
	out.Timestamp = ev.Time()
	out.Checked = ev.Checked
	return out
}
