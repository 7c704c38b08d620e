package timeparsing

import (
	"testing"
	"time"
)

// Base for every test in this file: Tuesday March 10, 2026, 09:30 local.
var nlpBase = time.Date(2026, 3, 10, 9, 30, 0, 0, time.Local)

func TestParseNaturalLanguage(t *testing.T) {
	tests := []struct {
		in       string
		wantDate string // result formatted as yyyy-mm-dd
		wantHour int    // -1 skips the hour check
	}{
		{"tomorrow", "2026-03-11", -1},
		{"yesterday", "2026-03-09", -1},
		{"next friday", "2026-03-13", -1}, // same week, base is a Tuesday
		{"next monday", "2026-03-16", -1},
		{"tomorrow at 9am", "2026-03-11", 9},
		{"next monday at 2pm", "2026-03-16", 14},
		{"in 3 days", "2026-03-13", -1},
		{"in 2 weeks", "2026-03-24", -1},
		{"3 days ago", "2026-03-07", -1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.in, nlpBase)
			if err != nil {
				t.Fatalf("ParseNaturalLanguage(%q): %v", tt.in, err)
			}
			if d := got.Format("2006-01-02"); d != tt.wantDate {
				t.Errorf("ParseNaturalLanguage(%q) = %s, want %s", tt.in, d, tt.wantDate)
			}
			if tt.wantHour >= 0 && got.Hour() != tt.wantHour {
				t.Errorf("ParseNaturalLanguage(%q) hour = %d, want %d", tt.in, got.Hour(), tt.wantHour)
			}
		})
	}
}

func TestParseNaturalLanguageRejectsNoise(t *testing.T) {
	for _, in := range []string{"", "qwerty asdf", "%%%%"} {
		if _, err := ParseNaturalLanguage(in, nlpBase); err == nil {
			t.Errorf("ParseNaturalLanguage(%q) should fail", in)
		}
	}
}

func TestParseRelativeTimeLayers(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		// Compact durations keep the base clock time
		{"+2h", nlpBase.Add(2 * time.Hour)},
		{"-1d", nlpBase.AddDate(0, 0, -1)},
		{"+1w", nlpBase.AddDate(0, 0, 7)},
		// Date-only resolves to local midnight
		{"2026-04-01", time.Date(2026, 4, 1, 0, 0, 0, 0, time.Local)},
		// RFC3339 carries its own zone
		{"2026-03-15T14:30:00Z", time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.in, nlpBase)
			if err != nil {
				t.Fatalf("ParseRelativeTime(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseRelativeTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRelativeTimeNaturalFallback(t *testing.T) {
	got, err := ParseRelativeTime("tomorrow", nlpBase)
	if err != nil {
		t.Fatalf("ParseRelativeTime(tomorrow): %v", err)
	}
	if d := got.Format("2006-01-02"); d != "2026-03-11" {
		t.Errorf("ParseRelativeTime(tomorrow) = %s, want 2026-03-11", d)
	}
}

// "+1d" is a valid compact duration and must not reach the NLP layer,
// which would round the clock time.
func TestParseRelativeTimeCompactWinsOverNLP(t *testing.T) {
	got, err := ParseRelativeTime("+1d", nlpBase)
	if err != nil {
		t.Fatalf("ParseRelativeTime(+1d): %v", err)
	}
	if want := nlpBase.AddDate(0, 0, 1); !got.Equal(want) {
		t.Errorf("ParseRelativeTime(+1d) = %v, want %v", got, want)
	}
}

func TestParseRelativeTimeUnparseable(t *testing.T) {
	if _, err := ParseRelativeTime("gibberish", nlpBase); err == nil {
		t.Error("expected an error for an unparseable expression")
	}
}
