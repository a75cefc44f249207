package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/message"

	"github.com/crimson-sun/tipwatch/internal/engine/dedup"
	"github.com/crimson-sun/tipwatch/internal/engine/group"
	"github.com/crimson-sun/tipwatch/internal/engine/projection"
	"github.com/crimson-sun/tipwatch/internal/i18n"
	"github.com/crimson-sun/tipwatch/internal/model"
	"github.com/crimson-sun/tipwatch/internal/settings"
	"github.com/crimson-sun/tipwatch/internal/view"
)

// ErrInvalidCap is returned by SetGroupLimit for caps outside 0..20.
var ErrInvalidCap = errors.New("invalid group cap")

// Renderer receives a fresh View after every projection change.
type Renderer interface {
	Render(ctx context.Context, v view.View) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithSettings sets the durable store. Default: in-memory.
func WithSettings(s settings.Store) Option {
	return func(e *Engine) { e.settings = s }
}

// WithRenderer sets the view consumer.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithPrinter sets the printer for headers and status labels.
func WithPrinter(p *message.Printer) Option {
	return func(e *Engine) { e.printer = p }
}

// WithIOTimeout bounds each settings write and render call. Default: 5s.
func WithIOTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ioTimeout = d
		}
	}
}

// Engine owns the event store, filter configuration, group limits and the
// latest projection. It is the only write path into that state and is not
// safe for concurrent use.
type Engine struct {
	store    *dedup.Store
	filter   model.FilterConfig
	limits   model.GroupLimits
	groups   *group.Accountant
	result   projection.Result
	status   model.Status
	settings settings.Store
	renderer Renderer
	printer  *message.Printer

	ioTimeout time.Duration
}

// New creates an Engine with default configuration and an empty store.
func New(opts ...Option) *Engine {
	e := &Engine{
		store:     dedup.New(),
		filter:    model.DefaultFilterConfig(),
		limits:    model.GroupLimits{},
		groups:    group.NewAccountant(),
		settings:  settings.NewMemory(),
		printer:   i18n.Printer(i18n.Default()),
		ioTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.result = projection.Result{Mode: e.filter.Sort}
	return e
}

// Load reads the filter, group limits and event history from the settings
// store. Keys that fail to load keep their defaults; the failures are
// returned joined.
func (e *Engine) Load(ctx context.Context) error {
	var errs []error

	var filter model.FilterConfig
	if found, err := e.settings.Get(ctx, settings.KeyFilter, &filter); err != nil {
		errs = append(errs, fmt.Errorf("load %s: %w", settings.KeyFilter, err))
	} else if found {
		e.filter = normalizeFilter(filter)
	}

	var limits model.GroupLimits
	if found, err := e.settings.Get(ctx, settings.KeyGroupLimits, &limits); err != nil {
		errs = append(errs, fmt.Errorf("load %s: %w", settings.KeyGroupLimits, err))
	} else if found {
		e.limits = model.GroupLimits{}
		for k, c := range limits {
			if c.Valid() && c.Limited() {
				e.limits[k] = c
			}
		}
	}

	var events []model.Event
	if found, err := e.settings.Get(ctx, settings.KeyEvents, &events); err != nil {
		errs = append(errs, fmt.Errorf("load %s: %w", settings.KeyEvents, err))
	} else if found {
		n := e.store.Restore(events)
		slog.Info("restored event history", "events", n)
	}

	e.result = projection.Result{Mode: e.filter.Sort}
	return errors.Join(errs...)
}

// Close writes a final snapshot of all persisted state.
func (e *Engine) Close(ctx context.Context) error {
	return errors.Join(
		e.settings.Set(ctx, settings.KeyFilter, e.filter),
		e.settings.Set(ctx, settings.KeyGroupLimits, e.limits),
		e.settings.Set(ctx, settings.KeyEvents, e.store.Events()),
	)
}

// --- commands ---

// Merge adds a batch of inbound records and refreshes when anything new
// arrived. Returns the number of events added.
func (e *Engine) Merge(records []model.Record) int {
	n := e.store.Merge(records)
	if n > 0 {
		e.Refresh()
	}
	return n
}

// ToggleChecked flips the checked flag of event id.
func (e *Engine) ToggleChecked(id string) (checked bool, ok bool) {
	checked, ok = e.store.Toggle(id)
	if ok {
		e.Refresh()
	}
	return checked, ok
}

// SetChecked sets the checked flag of event id.
func (e *Engine) SetChecked(id string, checked bool) bool {
	ok := e.store.SetChecked(id, checked)
	if ok {
		e.Refresh()
	}
	return ok
}

// ToggleGroupChecked checks every displayed row of group key, or unchecks
// them all when every row is already checked. Returns the new state.
func (e *Engine) ToggleGroupChecked(key model.GroupKey) (checked bool, ok bool) {
	g, ok := e.groups.Get(key)
	if !ok || len(g.Rows) == 0 {
		return false, false
	}
	all := true
	for _, r := range g.Rows {
		if ev, found := e.store.Get(r.Representative.ID); found && !ev.Checked {
			all = false
			break
		}
	}
	checked = !all
	e.store.SetCheckedMany(g.RepresentativeIDs(), checked)
	e.Refresh()
	return checked, true
}

// RemoveChecked deletes every checked event. Returns the number removed.
func (e *Engine) RemoveChecked() int {
	n := e.store.RemoveWhere(func(ev model.Event) bool { return ev.Checked })
	e.Refresh()
	return n
}

// Reset deletes the whole event history. Configuration is kept.
func (e *Engine) Reset() int {
	n := e.store.RemoveWhere(func(model.Event) bool { return true })
	e.Refresh()
	return n
}

// SetCategoryHidden hides or shows one category.
func (e *Engine) SetCategoryHidden(c model.Category, hidden bool) {
	e.updateFilter(e.filter.WithCategory(c, hidden))
}

// SetFilter replaces the whole filter configuration.
func (e *Engine) SetFilter(cfg model.FilterConfig) {
	e.updateFilter(normalizeFilter(cfg))
}

// SetHideExcluded toggles exclude-word filtering.
func (e *Engine) SetHideExcluded(hide bool) {
	cfg := e.filter
	cfg.HideExcluded = hide
	e.updateFilter(cfg)
}

// SetSortMode switches between time and group projection.
func (e *Engine) SetSortMode(mode model.SortMode) error {
	if _, err := model.ParseSortMode(string(mode)); err != nil {
		return err
	}
	cfg := e.filter
	cfg.Sort = mode
	e.updateFilter(cfg)
	return nil
}

// SetExcludeWords replaces the exclude word list. Entries are trimmed and
// blanks dropped; an empty result restores the blank placeholder slots.
func (e *Engine) SetExcludeWords(words []string) {
	cfg := e.filter
	cfg.ExcludeWords = normalizeWords(words)
	e.updateFilter(cfg)
}

// SetGroupLimit sets the cap of one group. Only that group is re-accounted;
// the rest of the projection is reused as is.
func (e *Engine) SetGroupLimit(key model.GroupKey, limit model.Cap) error {
	if !limit.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidCap, limit)
	}
	if limit.Limited() {
		e.limits[key] = limit
	} else {
		delete(e.limits, key)
	}
	e.persist(settings.KeyGroupLimits, e.limits)

	if _, ok := e.groups.Recap(key, limit); ok {
		e.render()
	}
	return nil
}

// Report implements the session status sink: last write wins.
func (e *Engine) Report(status model.Status) {
	e.status = status
	e.render()
}

// --- queries ---

// HasPending reports whether any stored event has not been rendered.
func (e *Engine) HasPending() bool {
	return e.store.HasPending()
}

// Status returns the latest session status.
func (e *Engine) Status() model.Status {
	return e.status
}

// Filter returns the current filter configuration.
func (e *Engine) Filter() model.FilterConfig {
	return e.filter
}

// Limits returns a copy of the group limits.
func (e *Engine) Limits() model.GroupLimits {
	out := make(model.GroupLimits, len(e.limits))
	for k, v := range e.limits {
		out[k] = v
	}
	return out
}

// Events returns a copy of the stored events in insertion order.
func (e *Engine) Events() []model.Event {
	return e.store.Events()
}

// View builds the snapshot of the latest projection.
func (e *Engine) View() view.View {
	v := view.View{
		Mode:       e.result.Mode,
		Total:      e.store.Len(),
		Status:     e.status,
		StatusText: e.statusText(),
	}
	if e.result.Mode == model.SortGroup {
		for _, g := range e.groups.Groups() {
			v.Groups = append(v.Groups, e.viewGroup(g))
		}
		return v
	}
	v.Timeline = append([]model.Event(nil), e.result.Timeline...)
	return v
}

// --- projection ---

// Refresh recomputes the projection, marks every event rendered, persists
// the history, and hands the new View to the renderer.
func (e *Engine) Refresh() {
	e.store.MarkAllRendered()
	e.result = projection.Project(e.store.Events(), e.filter)
	if e.result.Mode == model.SortGroup {
		e.groups.Rebuild(e.result.Groups, e.limits)
	} else {
		e.groups.Reset()
	}
	e.persist(settings.KeyEvents, e.store.Events())
	e.render()
}

// Tick refreshes only if some event is still unrendered. Returns whether a
// refresh happened.
func (e *Engine) Tick() bool {
	if !e.store.HasPending() {
		return false
	}
	e.Refresh()
	return true
}

func (e *Engine) updateFilter(cfg model.FilterConfig) {
	e.filter = cfg
	e.persist(settings.KeyFilter, e.filter)
	e.Refresh()
}

func (e *Engine) viewGroup(g group.Group) view.Group {
	vg := view.Group{
		Key:         g.Key,
		Header:      g.Header(e.printer),
		Cap:         g.Cap,
		Displayable: g.Displayable,
		Actors:      g.Actors,
		Rows:        make([]view.Row, len(g.Rows)),
	}
	for i, r := range g.Rows {
		ev := r.Representative
		if cur, ok := e.store.Get(ev.ID); ok {
			ev = cur
		}
		row := view.Row{
			Actor:     r.Actor,
			Event:     ev,
			Count:     r.Count,
			OverLimit: r.OverLimit,
		}
		if r.Count > 1 {
			row.CountLabel = e.printer.Sprintf(i18n.RowCount, r.Count)
		}
		vg.Rows[i] = row
	}
	return vg
}

func (e *Engine) statusText() string {
	switch e.status.State {
	case model.StateConnecting:
		return e.printer.Sprintf(i18n.Connecting)
	case model.StateActive:
		return e.printer.Sprintf(i18n.Monitoring)
	default:
		return e.printer.Sprintf(i18n.Stopped)
	}
}

func (e *Engine) render() {
	if e.renderer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.ioTimeout)
	defer cancel()
	if err := e.renderer.Render(ctx, e.View()); err != nil {
		slog.Warn("render failed", "error", err)
	}
}

func (e *Engine) persist(key string, value any) {
	ctx, cancel := context.WithTimeout(context.Background(), e.ioTimeout)
	defer cancel()
	if err := e.settings.Set(ctx, key, value); err != nil {
		slog.Warn("persist failed", "key", key, "error", err)
	}
}

func normalizeFilter(cfg model.FilterConfig) model.FilterConfig {
	if _, err := model.ParseSortMode(string(cfg.Sort)); err != nil {
		cfg.Sort = model.SortTime
	}
	cfg.ExcludeWords = normalizeWords(cfg.ExcludeWords)
	hidden := cfg.HideCategories
	cfg.HideCategories = nil
	for _, c := range hidden {
		cfg = cfg.WithCategory(c, true)
	}
	return cfg
}

func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if len(out) == model.MaxExcludeWords {
			break
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return make([]string, model.MaxExcludeWords)
	}
	return out
}
