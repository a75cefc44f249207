// Package view defines the read-only snapshot handed to renderers after each
// projection recompute.
package view

import "github.com/crimson-sun/tipwatch/internal/model"

// View is one rendered state of the engine.
type View struct {
	Mode       model.SortMode `json:"mode"`
	Timeline   []model.Event  `json:"timeline,omitempty"` // time mode only
	Groups     []Group        `json:"groups,omitempty"`   // group mode only
	Total      int            `json:"total"`              // events in the store, before filtering
	Status     model.Status   `json:"status"`
	StatusText string         `json:"statusText"`
}

// Group is one accounted group.
type Group struct {
	Key         model.GroupKey `json:"key"`
	Header      string         `json:"header"` // "(3件 / 2ユーザー)"
	Cap         model.Cap      `json:"cap"`
	Displayable int            `json:"displayable"`
	Actors      int            `json:"actors"`
	Rows        []Row          `json:"rows"`
}

// Row is one actor's representative within a group.
type Row struct {
	Actor      string      `json:"actor"`
	Event      model.Event `json:"event"`
	Count      int         `json:"count"`
	CountLabel string      `json:"countLabel,omitempty"` // set when Count > 1
	OverLimit  bool        `json:"overLimit"`
}

// Len returns the number of displayed rows.
func (v View) Len() int {
	if v.Mode == model.SortGroup {
		n := 0
		for _, g := range v.Groups {
			n += len(g.Rows)
		}
		return n
	}
	return len(v.Timeline)
}
