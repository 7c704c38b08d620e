// Package timeparsing turns schedule-time expressions into absolute times.
//
// Parsing is layered: compact durations (+6h, -1d, +2w) first, absolute
// timestamps (date-only, RFC3339) second, natural language ("tomorrow
// 9am") last. Exact formats go before natural language because the NLP
// matcher latches onto fragments of RFC3339 strings. `brm schedule add
// --at` accepts any layer.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var compactRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration resolves a compact offset like +6h, -1d or 2w
// against base. Units: h hours, d days, w weeks, m months, y years; a
// missing sign means forward. Day and larger units go through AddDate so
// calendar arithmetic holds across month boundaries, leap years and DST.
func ParseCompactDuration(s string, base time.Time) (time.Time, error) {
	m := compactRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", m[2])
	}
	if m[1] == "-" {
		n = -n
	}

	switch m[3] {
	case "h":
		return base.Add(time.Duration(n) * time.Hour), nil
	case "d":
		return base.AddDate(0, 0, n), nil
	case "w":
		return base.AddDate(0, 0, 7*n), nil
	case "m":
		return base.AddDate(0, n, 0), nil
	case "y":
		return base.AddDate(n, 0, 0), nil
	}
	// Unreachable: the regexp pins the unit set.
	return base, nil
}

// IsCompactDuration reports whether s uses compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactRe.MatchString(s)
}
