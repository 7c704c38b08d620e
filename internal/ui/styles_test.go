package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/brmkit/brm/internal/types"
)

// Force the Ascii profile so rendered strings carry no escape codes and can
// be compared directly.
func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestRenderRuleStatus(t *testing.T) {
	tests := []struct {
		status types.RuleStatus
		want   string
	}{
		{types.StatusActive, "ACTIVE"},
		{types.StatusInactive, "INACTIVE"},
		{types.StatusDeactivateInProgress, "DEACTIVATE_IN_PROGRESS"},
		{types.StatusDeleteInProgress, "DELETE_IN_PROGRESS"},
	}

	for _, tt := range tests {
		if got := RenderRuleStatus(tt.status); got != tt.want {
			t.Errorf("RenderRuleStatus(%s) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRenderApprovalStatus(t *testing.T) {
	tests := []struct {
		status types.ApprovalStatus
		want   string
	}{
		{types.ApprovalApproved, "APPROVED"},
		{types.ApprovalRejected, "REJECTED"},
		{types.ApprovalInProgress, "APPROVAL_IN_PROGRESS"},
		{types.ApprovalForceActivated, "FORCE_ACTIVATED"},
	}

	for _, tt := range tests {
		if got := RenderApprovalStatus(tt.status); got != tt.want {
			t.Errorf("RenderApprovalStatus(%s) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRenderOutcome(t *testing.T) {
	if got := RenderOutcome(true); !strings.Contains(got, "pass") {
		t.Errorf("RenderOutcome(true) = %q, want it to contain \"pass\"", got)
	}
	if got := RenderOutcome(false); !strings.Contains(got, "fail") {
		t.Errorf("RenderOutcome(false) = %q, want it to contain \"fail\"", got)
	}
}

func TestRenderCategory(t *testing.T) {
	if got := RenderCategory("dependencies"); got != "DEPENDENCIES" {
		t.Errorf("RenderCategory(dependencies) = %q, want DEPENDENCIES", got)
	}
}
