package timeparsing

import (
	"testing"
	"time"
)

func TestParseCompactDuration(t *testing.T) {
	// Noon UTC on a fixed day keeps every offset deterministic.
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	good := []struct {
		in   string
		want time.Time
	}{
		{"+6h", base.Add(6 * time.Hour)},
		{"6h", base.Add(6 * time.Hour)},
		{"-6h", base.Add(-6 * time.Hour)},
		{"+1d", time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)},
		{"-1d", time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)},
		{"+2w", time.Date(2026, 3, 24, 12, 0, 0, 0, time.UTC)},
		{"-2w", time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)},
		{"3m", time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)},
		{"+1y", time.Date(2027, 3, 10, 12, 0, 0, 0, time.UTC)},
		{"+48h", time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)},
		{"+365d", time.Date(2027, 3, 10, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range good {
		got, err := ParseCompactDuration(tt.in, base)
		if err != nil {
			t.Errorf("ParseCompactDuration(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	bad := []string{"", "6", "h", "1x", "6h+", "++1d", "+ 6h", "+1.5h", "2026-03-10", "tomorrow"}
	for _, in := range bad {
		if _, err := ParseCompactDuration(in, base); err == nil {
			t.Errorf("ParseCompactDuration(%q) accepted invalid input", in)
		}
	}
}

func TestIsCompactDuration(t *testing.T) {
	yes := []string{"+6h", "-1d", "2w", "12m", "+10y"}
	for _, in := range yes {
		if !IsCompactDuration(in) {
			t.Errorf("IsCompactDuration(%q) = false, want true", in)
		}
	}
	no := []string{"", "next week", "2026-01-01T09:00:00Z", "1 d", "d1", "--1h"}
	for _, in := range no {
		if IsCompactDuration(in) {
			t.Errorf("IsCompactDuration(%q) = true, want false", in)
		}
	}
}

func TestCompactDurationMonthOverflow(t *testing.T) {
	// AddDate semantics: Jan 31 + 1m normalizes through Feb 31 into March.
	jan31 := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	got, err := ParseCompactDuration("+1m", jan31)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Jan 31 +1m = %v, want %v", got, want)
	}
}

func TestCompactDurationLeapDay(t *testing.T) {
	feb28 := time.Date(2028, 2, 28, 12, 0, 0, 0, time.UTC)
	got, err := ParseCompactDuration("+1d", feb28)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Feb 28, 2028 +1d = %v, want %v", got, want)
	}
}

func TestCompactDurationKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
	got, err := ParseCompactDuration("+1d", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Location() != loc {
		t.Errorf("location not preserved: got %v, want %v", got.Location(), loc)
	}
}
