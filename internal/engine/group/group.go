// Package group computes per-actor rows and capped counts for one grouped
// topic. Each group is accounted independently, so changing one group's cap
// never touches another.
package group

import (
	"sort"
	"time"

	"golang.org/x/text/message"

	"github.com/crimson-sun/tipwatch/internal/engine/pattern"
	"github.com/crimson-sun/tipwatch/internal/engine/projection"
	"github.com/crimson-sun/tipwatch/internal/i18n"
	"github.com/crimson-sun/tipwatch/internal/model"
)

// Row is one actor within a group, represented by their most recent event.
type Row struct {
	Actor          string
	Representative model.Event
	Count          int
	OverLimit      bool
}

// Group is the accounted form of one partition.
type Group struct {
	Key         model.GroupKey
	Cap         model.Cap
	Rows        []Row
	Displayable int // sum over actors of min(count, cap), or count when unlimited
	Actors      int
}

// Account partitions members by actor and applies limit. Events without an
// actor are left out.
func Account(key model.GroupKey, members []model.Event, limit model.Cap) Group {
	type actorEvents struct {
		actor  string
		events []model.Event
		latest time.Time
	}
	var order []*actorEvents
	byActor := make(map[string]*actorEvents)
	for _, e := range members {
		actor, ok := pattern.ActorOf(e.Text)
		if !ok {
			continue
		}
		a, exists := byActor[actor]
		if !exists {
			a = &actorEvents{actor: actor}
			byActor[actor] = a
			order = append(order, a)
		}
		a.events = append(a.events, e)
	}

	rows := make([]Row, 0, len(order))
	for _, a := range order {
		sorted := projection.SortByTime(a.events)
		rows = append(rows, Row{
			Actor:          a.actor,
			Representative: sorted[0],
			Count:          len(sorted),
		})
	}
	// Most recently active actors first; ties keep first-appearance order.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Representative.Time().After(rows[j].Representative.Time())
	})

	g := Group{Key: key, Rows: rows, Actors: len(rows)}
	return g.WithCap(limit)
}

// WithCap returns a copy of g re-accounted under limit. Row order and
// representatives are unchanged; only flags and the displayable count move.
func (g Group) WithCap(limit model.Cap) Group {
	rows := make([]Row, len(g.Rows))
	displayable := 0
	for i, r := range g.Rows {
		r.OverLimit = limit.Limited() && r.Count > int(limit)
		if limit.Limited() {
			displayable += min(r.Count, int(limit))
		} else {
			displayable += r.Count
		}
		rows[i] = r
	}
	g.Rows = rows
	g.Cap = limit
	g.Displayable = displayable
	return g
}

// Header renders "(<displayable>件 / <actors>ユーザー)" in the printer's language.
func (g Group) Header(p *message.Printer) string {
	return p.Sprintf(i18n.GroupHeader, g.Displayable, g.Actors)
}

// RepresentativeIDs returns the IDs of the displayed row events.
func (g Group) RepresentativeIDs() []string {
	ids := make([]string, len(g.Rows))
	for i, r := range g.Rows {
		ids[i] = r.Representative.ID
	}
	return ids
}

// Accountant keeps the accounted groups of the latest projection so a cap
// change can be applied to a single group.
type Accountant struct {
	groups []Group
	index  map[model.GroupKey]int
}

// NewAccountant creates an empty Accountant.
func NewAccountant() *Accountant {
	return &Accountant{index: make(map[model.GroupKey]int)}
}

// Rebuild accounts every partition from scratch.
func (a *Accountant) Rebuild(parts []projection.Partition, limits model.GroupLimits) {
	a.groups = make([]Group, 0, len(parts))
	a.index = make(map[model.GroupKey]int, len(parts))
	for _, p := range parts {
		a.index[p.Key] = len(a.groups)
		a.groups = append(a.groups, Account(p.Key, p.Events, limits.Get(p.Key)))
	}
}

// Recap re-accounts one group under a new limit. Returns false if the group is
// not part of the current projection.
func (a *Accountant) Recap(key model.GroupKey, limit model.Cap) (Group, bool) {
	i, ok := a.index[key]
	if !ok {
		return Group{}, false
	}
	a.groups[i] = a.groups[i].WithCap(limit)
	return a.groups[i], true
}

// Get returns the accounted group for key.
func (a *Accountant) Get(key model.GroupKey) (Group, bool) {
	i, ok := a.index[key]
	if !ok {
		return Group{}, false
	}
	return a.groups[i], true
}

// Groups returns the accounted groups in projection order.
func (a *Accountant) Groups() []Group {
	out := make([]Group, len(a.groups))
	copy(out, a.groups)
	return out
}

// Reset drops all accounted groups.
func (a *Accountant) Reset() {
	a.groups = nil
	a.index = make(map[model.GroupKey]int)
}
