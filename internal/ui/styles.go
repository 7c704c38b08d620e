// Package ui provides terminal styling for brm CLI output.
// Colors come from the Gruvbox Material palette with adaptive light/dark
// pairs; ConfigureColor downgrades everything to plain text when color is
// off or stdout is not a terminal.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brmkit/brm/internal/types"
)

// Semantic styles shared by every command. Palette:
// https://github.com/sainnhe/gruvbox-material
var (
	PassStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6f8352", Dark: "#a9b665"})
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#b47109", Dark: "#d8a657"})
	FailStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#c14a4a", Dark: "#ea6962"})
	MutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#928374", Dark: "#7c6f64"})
	AccentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#45707a", Dark: "#7daea3"})

	// CategoryStyle marks section headers.
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#45707a", Dark: "#7daea3"})
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

// Tree characters for dependency-tree display
const (
	TreeChild  = "⎿ " // child indicator
	TreeIndent = "  " // 2-space indent per level
)

const separator = "──────────────────────────────────────────"

// RenderPass renders text in the pass (green) style.
func RenderPass(s string) string {
	return PassStyle.Render(s)
}

// RenderWarn renders text in the warning (yellow) style.
func RenderWarn(s string) string {
	return WarnStyle.Render(s)
}

// RenderFail renders text in the fail (red) style.
func RenderFail(s string) string {
	return FailStyle.Render(s)
}

// RenderMuted renders text in the muted (gray) style.
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderAccent renders text in the accent (blue) style.
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderCategory renders a section header in uppercase.
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders a muted horizontal rule.
func RenderSeparator() string {
	return MutedStyle.Render(separator)
}

// RuleStatusStyle picks the style for a rule status: green for ACTIVE, red
// for the teardown states, muted for INACTIVE. Callers that need fixed-width
// columns pad the raw text first, then apply the style.
func RuleStatusStyle(s types.RuleStatus) lipgloss.Style {
	switch s {
	case types.StatusActive:
		return PassStyle
	case types.StatusDeactivateInProgress, types.StatusDeleteInProgress:
		return FailStyle
	default:
		return MutedStyle
	}
}

// RenderRuleStatus renders the status word in its style.
func RenderRuleStatus(s types.RuleStatus) string {
	return RuleStatusStyle(s).Render(string(s))
}

// ApprovalStatusStyle picks the style for an approval status: green for
// APPROVED and FORCE_ACTIVATED, red for REJECTED and FORCE_DEACTIVATED,
// yellow for anything still in flight.
func ApprovalStatusStyle(s types.ApprovalStatus) lipgloss.Style {
	switch s {
	case types.ApprovalApproved, types.ApprovalForceActivated:
		return PassStyle
	case types.ApprovalRejected, types.ApprovalForceDeactivated:
		return FailStyle
	default:
		return WarnStyle
	}
}

// RenderApprovalStatus renders the approval status word in its style.
func RenderApprovalStatus(s types.ApprovalStatus) string {
	return ApprovalStatusStyle(s).Render(string(s))
}

// ScheduleStatusStyle picks the style for a schedule outcome.
func ScheduleStatusStyle(s types.ScheduleStatus) lipgloss.Style {
	switch s {
	case types.ScheduleExecuted:
		return PassStyle
	case types.ScheduleFailed:
		return FailStyle
	case types.ScheduleCancelled:
		return MutedStyle
	default:
		return WarnStyle
	}
}

// RenderOutcome renders a pass/fail execution outcome with its icon.
func RenderOutcome(passed bool) string {
	if passed {
		return PassStyle.Render(IconPass + " pass")
	}
	return FailStyle.Render(IconFail + " fail")
}

// RenderPassIcon renders the pass icon with styling
func RenderPassIcon() string {
	return PassStyle.Render(IconPass)
}

// RenderWarnIcon renders the warning icon with styling
func RenderWarnIcon() string {
	return WarnStyle.Render(IconWarn)
}

// RenderFailIcon renders the fail icon with styling
func RenderFailIcon() string {
	return FailStyle.Render(IconFail)
}

// RenderSkipIcon renders the skip icon with styling
func RenderSkipIcon() string {
	return MutedStyle.Render(IconSkip)
}
