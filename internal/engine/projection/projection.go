// Package projection derives the visible view of the event store from the
// active filter and sort configuration. Every function here is a pure read:
// inputs are never mutated.
package projection

import (
	"sort"
	"strings"
	"time"

	"github.com/crimson-sun/tipwatch/internal/engine/pattern"
	"github.com/crimson-sun/tipwatch/internal/model"
)

// Partition is one group of events sharing a GroupKey, in insertion order.
type Partition struct {
	Key    model.GroupKey
	Events []model.Event
}

// Result is the projected view. Timeline is set in time mode, Groups in
// group mode.
type Result struct {
	Mode     model.SortMode
	Timeline []model.Event
	Groups   []Partition
}

// Project filters events and orders or partitions them per cfg.Sort.
func Project(events []model.Event, cfg model.FilterConfig) Result {
	filtered := Filter(events, cfg)
	if cfg.Sort == model.SortGroup {
		return Result{Mode: model.SortGroup, Groups: Partitions(filtered)}
	}
	return Result{Mode: model.SortTime, Timeline: SortByTime(filtered)}
}

// Filter drops events hidden by category or by exclude word.
func Filter(events []model.Event, cfg model.FilterConfig) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if len(cfg.HideCategories) > 0 {
			if c, ok := pattern.CategoryOf(e.Text); ok && cfg.Hides(c) {
				continue
			}
		}
		if cfg.HideExcluded && ContainsExcludeWord(e.Text, cfg.ExcludeWords) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ContainsExcludeWord reports whether text contains any non-empty word as a
// case-sensitive literal substring.
func ContainsExcludeWord(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// SortByTime returns a copy of events ordered most recent first. Ties keep
// their original relative order.
func SortByTime(events []model.Event) []model.Event {
	type keyed struct {
		event model.Event
		at    time.Time
	}
	tmp := make([]keyed, len(events))
	for i, e := range events {
		tmp[i] = keyed{event: e, at: e.Time()}
	}
	sort.SliceStable(tmp, func(i, j int) bool {
		return tmp[i].at.After(tmp[j].at)
	})
	out := make([]model.Event, len(tmp))
	for i, k := range tmp {
		out[i] = k.event
	}
	return out
}

// Partitions groups events by GroupKey in first-seen group order. Events
// that do not match the grouping grammar are dropped.
func Partitions(events []model.Event) []Partition {
	var order []model.GroupKey
	groups := make(map[model.GroupKey]*Partition)
	for _, e := range events {
		key, ok := pattern.GroupKeyOf(e.Text)
		if !ok {
			continue
		}
		p, exists := groups[key]
		if !exists {
			p = &Partition{Key: key}
			groups[key] = p
			order = append(order, key)
		}
		p.Events = append(p.Events, e)
	}

	out := make([]Partition, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}
