package ui

import (
	"fmt"
	"strings"
	"testing"
)

func TestTruncateLinesShortTextUnchanged(t *testing.T) {
	text := "SELECT amt\nFROM fees\nWHERE amt < 0"
	if got := TruncateLines(text, DefaultMaxLines, DefaultContextLines); got != text {
		t.Errorf("short text changed: %q", got)
	}
	if got := TruncateLines("", 10, 2); got != "" {
		t.Errorf("empty text changed: %q", got)
	}
}

func TestTruncateLinesElidesMiddle(t *testing.T) {
	var lines []string
	for i := 1; i <= 30; i++ {
		lines = append(lines, fmt.Sprintf("  col_%d,", i))
	}
	got := TruncateLines(strings.Join(lines, "\n"), 15, 5)

	if !strings.HasPrefix(got, "  col_1,") {
		t.Errorf("lost the head: %q", got)
	}
	if !strings.HasSuffix(got, "  col_30,") {
		t.Errorf("lost the tail: %q", got)
	}
	// 30 lines minus 5 of context at each end
	if !strings.Contains(got, "20 lines hidden") {
		t.Errorf("missing hidden count: %q", got)
	}
	if !strings.Contains(got, "--full") {
		t.Errorf("missing the --full hint: %q", got)
	}
}

func TestTruncateLinesTinyBudget(t *testing.T) {
	text := "a\nb\nc\nd\ne\nf\ng\nh"
	// maxLines 3 cannot fit context from both ends, falls back to head + ellipsis
	got := TruncateLines(text, 3, 5)
	if got != "a\nb\nc\n..." {
		t.Errorf("got %q", got)
	}
}

func TestTruncateSimple(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"fee-check", 20, "fee-check"},
		{"fee-check", 9, "fee-check"},
		{"negative-balance-reconciliation", 20, "negative-balance-..."},
		{"anything", 3, "..."},
		{"", 5, ""},
		{"köln-tax-übersicht", 10, "köln-ta..."}, // rune count, not bytes
	}
	for _, tt := range tests {
		if got := TruncateSimple(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("TruncateSimple(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestWrapTextKeepsLineBreaks(t *testing.T) {
	got := WrapText("first\nsecond", 80)
	if got != "first\nsecond" {
		t.Errorf("got %q", got)
	}
}

func TestWrapTextRespectsWidth(t *testing.T) {
	got := WrapText("the quick brown fox jumps over the lazy dog", 20)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > 20 {
			t.Errorf("line %q exceeds width 20", line)
		}
	}
	if strings.Count(got, "\n") == 0 {
		t.Errorf("expected wrapping, got %q", got)
	}
	// No words lost
	if strings.Join(strings.Fields(got), " ") != "the quick brown fox jumps over the lazy dog" {
		t.Errorf("words mangled: %q", got)
	}
}

func TestWrapTextOverlongWord(t *testing.T) {
	// A word longer than the width stays whole on its own line.
	got := WrapText("see docs/validation-pipeline-architecture.md now", 10)
	if !strings.Contains(got, "docs/validation-pipeline-architecture.md") {
		t.Errorf("overlong word split: %q", got)
	}
}
