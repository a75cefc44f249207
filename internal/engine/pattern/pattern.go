// Package pattern extracts structured fields from chat event text.
//
// Event texts produced by the monitoring backend look like
//
//	[エピックゴール] 100コイン：ありがとう 【alice】
//
// The bracketed tag is the category, the full-width bracketed label is the
// actor, and the text between the full-width colon and the actor is the
// body used for grouping. Any part that does not match is simply absent.
package pattern

import (
	"regexp"

	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/tipwatch/internal/model"
)

// UnknownActor is displayed for events without an actor label.
const UnknownActor = "Unknown"

var (
	categoryRe = regexp.MustCompile(`\[(.*?)\]`)
	actorRe    = regexp.MustCompile(`【(.*?)】`)
	bodyRe     = regexp.MustCompile(`\[(.*?)\] .*?：(.*?) 【`)
)

// Fields holds what could be extracted from one text.
type Fields struct {
	Category    model.Category
	HasCategory bool
	Actor       string
	HasActor    bool

	// Body is only set when the text matches the full grouping grammar.
	Body      string
	Groupable bool

	// groupCategory is the category captured by the grouping grammar, which
	// can differ from Category when the text holds several bracketed tags.
	groupCategory model.Category
}

// Extract parses text. It never fails; unmatched parts are left absent.
func Extract(text string) Fields {
	var f Fields
	if m := categoryRe.FindStringSubmatch(text); m != nil {
		f.Category = model.Category(m[1])
		f.HasCategory = true
	}
	if m := actorRe.FindStringSubmatch(text); m != nil {
		f.Actor = m[1]
		f.HasActor = true
	}
	if m := bodyRe.FindStringSubmatch(text); m != nil {
		f.groupCategory = model.Category(m[1])
		f.Body = m[2]
		f.Groupable = true
	}
	return f
}

// CategoryOf returns the category of text, or "" and false.
func CategoryOf(text string) (model.Category, bool) {
	m := categoryRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return model.Category(m[1]), true
}

// ActorOf returns the actor of text, or "" and false.
func ActorOf(text string) (string, bool) {
	m := actorRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ActorOrUnknown returns the actor label, or UnknownActor when absent.
func (f Fields) ActorOrUnknown() string {
	if !f.HasActor {
		return UnknownActor
	}
	return f.Actor
}

// GroupKey returns the grouping key and whether the text is groupable.
// Bodies are NFC-normalized so visually identical comments share a group.
func (f Fields) GroupKey() (model.GroupKey, bool) {
	if !f.Groupable {
		return "", false
	}
	return model.GroupKey("[" + string(f.groupCategory) + "] ：" + norm.NFC.String(f.Body)), true
}

// GroupKeyOf is shorthand for Extract(text).GroupKey().
func GroupKeyOf(text string) (model.GroupKey, bool) {
	return Extract(text).GroupKey()
}
