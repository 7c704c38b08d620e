package main

import (
	"fmt"
	"os"
)

// FatalError prints an error and exits with code 1. In --json mode the
// error goes to stderr as a JSON object instead, so scripts never have to
// scrape prose.
//
// Example:
//
//	if err := svc.Create(ctx, rule, actor); err != nil {
//	    FatalError("%v", err)
//	}
func FatalError(format string, args ...interface{}) {
	fail(fmt.Errorf(format, args...), "")
}

// FatalErrorWithHint is FatalError with a follow-up suggestion the user
// can act on.
//
// Example:
//
//	FatalErrorWithHint("no .brm directory found", "Run 'brm init' to set up a project")
func FatalErrorWithHint(message, hint string) {
	fail(fmt.Errorf("%s", message), hint)
}

func fail(err error, hint string) {
	if jsonOutput {
		outputJSONError(err, hint)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	os.Exit(1)
}

// WarnError prints a warning and returns. For auxiliary operations whose
// failure should not stop the command.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
