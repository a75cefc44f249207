package tipwatch

type options struct {
	language     string
	sortMode     string
	hidden       []string
	excludeWords []string
	limits       map[string]int
}

// Option configures a Digest.
type Option func(*options)

// WithLanguage sets the header language: "ja" (default) or "en".
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithSortMode sets "time" (default) or "group".
func WithSortMode(mode string) Option {
	return func(o *options) { o.sortMode = mode }
}

// WithHiddenCategories hides events whose bracketed tag is one of cats.
func WithHiddenCategories(cats ...string) Option {
	return func(o *options) { o.hidden = append(o.hidden, cats...) }
}

// WithExcludeWords hides events containing any of words.
func WithExcludeWords(words ...string) Option {
	return func(o *options) { o.excludeWords = append(o.excludeWords, words...) }
}

// WithGroupLimit caps the displayed count of one group. Valid caps are
// 1 through 20; 0 removes the cap.
func WithGroupLimit(key string, limit int) Option {
	return func(o *options) {
		if o.limits == nil {
			o.limits = make(map[string]int)
		}
		o.limits[key] = limit
	}
}

func defaultOptions() options {
	return options{
		language: "ja",
		sortMode: "time",
	}
}
