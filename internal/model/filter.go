package model

import "fmt"

// Category is the bracketed tag at the start of an event text, e.g. "メッセージ".
type Category string

// Categories emitted by the monitoring backend.
const (
	CategoryMessage  Category = "メッセージ"
	CategoryTipMenu  Category = "プレゼントメニュー"
	CategoryEpicGoal Category = "エピックゴール"
	CategoryRoulette Category = "ルーレット"
	CategorySystem   Category = "システム"
)

// SortMode selects how the projection is ordered.
type SortMode string

const (
	SortTime  SortMode = "time"
	SortGroup SortMode = "group"
)

// ParseSortMode validates a sort mode string.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case SortTime, SortGroup:
		return SortMode(s), nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", s)
	}
}

// MaxExcludeWords is the number of exclude word slots.
const MaxExcludeWords = 20

// FilterConfig is the process-wide filter and sort configuration.
type FilterConfig struct {
	HideCategories []Category `json:"hideCategories"`
	HideExcluded   bool       `json:"hideExcluded"`
	ExcludeWords   []string   `json:"excludeWords"`
	Sort           SortMode   `json:"sortMode"`
}

// DefaultFilterConfig returns the configuration used before anything is persisted.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		ExcludeWords: make([]string, MaxExcludeWords),
		Sort:         SortTime,
	}
}

// Hides reports whether events of category c are hidden.
func (f FilterConfig) Hides(c Category) bool {
	for _, h := range f.HideCategories {
		if h == c {
			return true
		}
	}
	return false
}

// WithCategory returns a copy of f with c hidden or shown.
func (f FilterConfig) WithCategory(c Category, hidden bool) FilterConfig {
	out := make([]Category, 0, len(f.HideCategories)+1)
	for _, h := range f.HideCategories {
		if h != c {
			out = append(out, h)
		}
	}
	if hidden {
		out = append(out, c)
	}
	f.HideCategories = out
	return f
}

// Cap is a per-group display cap. Unlimited is the zero value.
type Cap int

const (
	Unlimited Cap = 0
	MaxCap    Cap = 20
)

// Limited reports whether the cap restricts counts.
func (c Cap) Limited() bool { return c > Unlimited }

// Valid reports whether c is Unlimited or within 1..MaxCap.
func (c Cap) Valid() bool { return c >= Unlimited && c <= MaxCap }

func (c Cap) String() string {
	if !c.Limited() {
		return "∞"
	}
	return fmt.Sprintf("%d", int(c))
}

// GroupKey identifies a grouping topic: category plus normalized body.
type GroupKey string

// GroupLimits maps group keys to caps. Absent keys are Unlimited.
type GroupLimits map[GroupKey]Cap

// Get returns the cap for key.
func (g GroupLimits) Get(key GroupKey) Cap {
	return g[key]
}
