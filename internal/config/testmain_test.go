package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// TestMain pins config discovery to a throwaway directory. Initialize()
// walks up from CWD looking for a .brm directory; a test process running
// inside a real project tree would otherwise load that project's settings
// instead of the built-in defaults.
func TestMain(m *testing.M) {
	os.Exit(runIsolated(m))
}

func runIsolated(m *testing.M) int {
	tmp, err := os.MkdirTemp("", "brm-config-tests-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		return 1
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	oldWD, _ := os.Getwd()
	defer func() { _ = os.Chdir(oldWD) }()

	// Nothing under tmp carries a .brm directory, and HOME/XDG point nowhere.
	_ = os.Chdir(tmp)
	_ = os.Setenv("HOME", tmp)
	_ = os.Setenv("USERPROFILE", tmp) // Windows
	_ = os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg-config"))

	ResetForTesting()
	defer ResetForTesting()
	return m.Run()
}
