package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is the release version, overridden at build time via -ldflags.
var Version = "0.9.0"

// Build is the build identifier, overridden at build time via -ldflags.
var Build = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		commit := vcsRevision()
		if jsonOutput {
			out := map[string]string{"version": Version, "build": Build}
			if commit != "" {
				out["commit"] = commit
			}
			outputJSON(out)
			return
		}
		if commit != "" {
			fmt.Printf("brm version %s (%s, %s)\n", Version, Build, commit)
			return
		}
		fmt.Printf("brm version %s (%s)\n", Version, Build)
	},
}

// vcsRevision returns the short commit hash the Go toolchain recorded at
// build time, or "" for builds outside a checkout.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return s.Value[:12]
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
