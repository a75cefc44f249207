// Package i18n holds the user-facing status and header strings.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys.
const (
	URLRequired    = "status.url_required"
	StartFailed    = "status.start_failed"
	Retrying       = "status.retrying"
	ConnectionLost = "status.connection_lost"
	Connecting     = "status.connecting"
	Monitoring     = "status.monitoring"
	Stopped        = "status.stopped"
	GroupHeader    = "group.header"
	RowCount       = "group.row_count"
)

// Default returns the default language tag.
func Default() language.Tag {
	return language.Japanese
}

// Supported returns the list of languages with a catalog.
func Supported() []language.Tag {
	return []language.Tag{language.Japanese, language.English}
}

var matcher = language.NewMatcher(Supported())

// ParseTag resolves s ("ja", "en-US", ...) to a supported tag, falling back
// to Default.
func ParseTag(s string) language.Tag {
	if s == "" {
		return Default()
	}
	tag, err := language.Parse(s)
	if err != nil {
		return Default()
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Default()
	}
	return Supported()[idx]
}

// Printer returns a message printer for the supplied tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}
