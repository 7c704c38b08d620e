package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor determines whether output should be colored.
//
// Honors the conventional environment knobs: NO_COLOR and CLICOLOR=0
// disable color, CLICOLOR_FORCE enables it even when stdout is not a TTY,
// and NO_COLOR wins over CLICOLOR_FORCE.
func ShouldUseColor() bool {
	if termenv.EnvNoColor() {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// ShouldUseEmoji determines whether unicode status icons should be used.
// BRM_NO_EMOJI forces plain ASCII; otherwise icons follow TTY detection.
func ShouldUseEmoji() bool {
	if os.Getenv("BRM_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}

// ConfigureColor applies color preferences to the styling layer. Called once
// by the CLI after flags are parsed; noColor reflects --no-color or the
// no-color config key.
func ConfigureColor(noColor bool) {
	if noColor || !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}
