package timeparsing

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// newNLParser builds a when parser with the English and common rule sets.
func newNLParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseNaturalLanguage parses expressions like "tomorrow", "next monday at
// 2pm", "in 3 days" relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := newNLParser().Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("natural language parse of %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("not a natural language time: %q", s)
	}
	return r.Time, nil
}

// ParseRelativeTime resolves a schedule-time expression through the layers
// in order: compact duration, date-only, RFC3339, natural language.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time expression %q", s)
}
