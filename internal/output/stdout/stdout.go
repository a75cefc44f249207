package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/crimson-sun/tipwatch/internal/engine/pattern"
	"github.com/crimson-sun/tipwatch/internal/model"
	"github.com/crimson-sun/tipwatch/internal/output"
	"github.com/crimson-sun/tipwatch/internal/view"
)

// clearScreen moves the cursor home and erases the display.
const clearScreen = "\x1b[H\x1b[2J"

// Mode selects the rendering style.
type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// Option configures a stdout Output.
type Option func(*Output)

// WithWriter replaces os.Stdout as the destination.
func WithWriter(w io.Writer) Option {
	return func(o *Output) { o.w = w }
}

// WithWidth truncates event texts to n display cells. 0 disables truncation.
func WithWidth(n int) Option {
	return func(o *Output) { o.width = n }
}

// WithPretty indents JSON output.
func WithPretty(pretty bool) Option {
	return func(o *Output) { o.pretty = pretty }
}

// WithClear clears the screen before each text render.
func WithClear(clear bool) Option {
	return func(o *Output) { o.clear = clear }
}

// Output renders views to stdout, either as styled text or as one JSON
// document per view.
type Output struct {
	mu     sync.Mutex
	w      io.Writer
	mode   Mode
	width  int
	pretty bool
	clear  bool
	styles styles
}

type styles struct {
	status    lipgloss.Style
	message   lipgloss.Style
	category  lipgloss.Style
	header    lipgloss.Style
	count     lipgloss.Style
	overLimit lipgloss.Style
	checked   lipgloss.Style
	id        lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		status:    r.NewStyle().Bold(true),
		message:   r.NewStyle().Foreground(lipgloss.Color("11")),
		category:  r.NewStyle().Foreground(lipgloss.Color("12")),
		header:    r.NewStyle().Bold(true),
		count:     r.NewStyle().Faint(true),
		overLimit: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		checked:   r.NewStyle().Faint(true).Strikethrough(true),
		id:        r.NewStyle().Faint(true),
	}
}

// New creates a stdout Output in the given mode.
func New(mode Mode, opts ...Option) *Output {
	o := &Output{w: os.Stdout, mode: mode}
	for _, opt := range opts {
		opt(o)
	}
	o.styles = newStyles(lipgloss.NewRenderer(o.w))
	return o
}

func (o *Output) Render(_ context.Context, v view.View) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	v = output.Format(v, o.width)
	if o.mode == ModeJSON {
		enc := json.NewEncoder(o.w)
		if o.pretty {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("stdout output: %w", err)
		}
		return nil
	}

	var b strings.Builder
	if o.clear {
		b.WriteString(clearScreen)
	}
	o.writeText(&b, v)
	if _, err := io.WriteString(o.w, b.String()); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}

func (o *Output) writeText(b *strings.Builder, v view.View) {
	s := o.styles
	b.WriteString(s.status.Render(v.StatusText))
	if v.Status.Message != "" {
		b.WriteString(" ")
		b.WriteString(s.message.Render(v.Status.Message))
	}
	fmt.Fprintf(b, " (%d/%d)\n", v.Len(), v.Total)

	if v.Mode == model.SortGroup {
		for _, g := range v.Groups {
			fmt.Fprintf(b, "%s %s cap=%s\n",
				s.header.Render(string(g.Key)), g.Header, g.Cap)
			for _, r := range g.Rows {
				b.WriteString("  ")
				b.WriteString(checkbox(r.Event.Checked))
				b.WriteString(" ")
				b.WriteString(r.Actor)
				if r.CountLabel != "" {
					label := s.count
					if r.OverLimit {
						label = s.overLimit
					}
					b.WriteString(" ")
					b.WriteString(label.Render(r.CountLabel))
				}
				b.WriteString(" ")
				b.WriteString(s.id.Render(r.Event.ID))
				b.WriteString("\n")
			}
		}
		return
	}

	for _, e := range v.Timeline {
		b.WriteString(checkbox(e.Checked))
		b.WriteString(" ")
		if cat, ok := pattern.CategoryOf(e.Text); ok {
			b.WriteString(s.category.Render(string(cat)))
			b.WriteString(" ")
		}
		text := e.Text
		if e.Checked {
			text = s.checked.Render(text)
		}
		b.WriteString(text)
		b.WriteString(" ")
		b.WriteString(s.id.Render(e.ID))
		b.WriteString("\n")
	}
}

func checkbox(checked bool) string {
	if checked {
		return "[x]"
	}
	return "[ ]"
}
