package ui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// ToPager pipes content through the user's pager when it would scroll off
// the screen. Output goes straight to stdout when paging is disabled, when
// stdout is not a terminal, or when the content fits.
//
// BRM_NO_PAGER disables paging entirely; BRM_PAGER then PAGER select the
// program, defaulting to less.
func ToPager(content string, disable bool) error {
	if disable || os.Getenv("BRM_NO_PAGER") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(content)
		return nil
	}
	if fitsOnScreen(content) {
		fmt.Print(content)
		return nil
	}

	// The pager value may carry arguments, e.g. "less -R".
	parts := strings.Fields(pagerCommand())
	if len(parts) == 0 {
		fmt.Print(content)
		return nil
	}
	cmd := exec.Command(parts[0], parts[1:]...) // #nosec G204 - pager command is user-configurable by design
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if os.Getenv("LESS") == "" {
		// -R keeps ANSI colors, -F quits when one screen suffices, -X skips
		// the screen clear on exit.
		cmd.Env = append(cmd.Env, "LESS=-RFX")
	}
	return cmd.Run()
}

// pagerCommand picks the pager program: BRM_PAGER, then PAGER, then less.
func pagerCommand() string {
	for _, env := range []string{"BRM_PAGER", "PAGER"} {
		if pager := os.Getenv(env); pager != "" {
			return pager
		}
	}
	return "less"
}

// fitsOnScreen reports whether content fits the terminal without scrolling.
// An unknown terminal size counts as not fitting.
func fitsOnScreen(content string) bool {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height <= 0 {
		return false
	}
	return strings.Count(content, "\n")+1 <= height-1
}
