package output

import (
	"github.com/charmbracelet/x/ansi"

	"github.com/crimson-sun/tipwatch/internal/model"
	"github.com/crimson-sun/tipwatch/internal/view"
)

// Ellipsis marks truncated text.
const Ellipsis = "…"

// Format returns a copy of v with every event text cut to width display
// cells. Wide (CJK) characters count as two cells. width <= 0 keeps texts
// whole.
func Format(v view.View, width int) view.View {
	if width <= 0 {
		return v
	}
	if v.Timeline != nil {
		timeline := make([]model.Event, len(v.Timeline))
		for i, e := range v.Timeline {
			e.Text = Truncate(e.Text, width)
			timeline[i] = e
		}
		v.Timeline = timeline
	}
	if v.Groups != nil {
		groups := make([]view.Group, len(v.Groups))
		for i, g := range v.Groups {
			rows := make([]view.Row, len(g.Rows))
			for j, r := range g.Rows {
				r.Event.Text = Truncate(r.Event.Text, width)
				rows[j] = r
			}
			g.Rows = rows
			groups[i] = g
		}
		v.Groups = groups
	}
	return v
}

// Truncate cuts s to at most width display cells, ending in Ellipsis when
// anything was removed.
func Truncate(s string, width int) string {
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, Ellipsis)
}
