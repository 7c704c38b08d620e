// Package config manages brm configuration through a layered viper instance.
//
// Precedence, highest first:
//  1. Explicit Set calls (command-line flags bound by cmd/brm)
//  2. Environment variables (BRM_*)
//  3. .brm/config.yaml discovered by walking up from the working directory
//  4. Built-in defaults
//
// Startup keys (everything the process needs before the rules database is
// open) live in config.yaml; all other keys live in the database config
// table. See IsYamlOnlyKey for the split.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// v is the package-level viper instance. It is nil until Initialize runs;
// every accessor tolerates nil so early callers get zero values instead of
// panics.
var v *viper.Viper

// Initialize builds a fresh viper instance with defaults, environment
// bindings, and the project config file if one exists. Safe to call more
// than once; later calls rebuild the instance (tests rely on this to pick
// up environment changes).
func Initialize() error {
	nv := viper.New()

	// Defaults for every known key. Keys is the authoritative registry;
	// durations and ints get typed defaults so GetDuration/GetInt work
	// without string parsing.
	nv.SetDefault("json", false)
	nv.SetDefault("no-color", false)
	nv.SetDefault("db", "")
	nv.SetDefault("actor", "")
	nv.SetDefault("group", "")
	nv.SetDefault("target-dsn", "")
	nv.SetDefault("lock-ttl", 30*time.Minute)
	nv.SetDefault("scheduler.interval", 60*time.Second)
	nv.SetDefault("scheduler.parallelism", 1)
	nv.SetDefault("approval.stages", []string{})
	nv.SetDefault("approval.final-approver", "admin")
	nv.SetDefault("analyzer.default-schema", "")
	nv.SetDefault("daemon.log-path", "")

	for key, envVar := range KeyEnvMap() {
		if err := nv.BindEnv(key, envVar); err != nil {
			return fmt.Errorf("failed to bind %s: %w", envVar, err)
		}
	}

	// Project config file: .brm/config.yaml, discovered by walking up from
	// the working directory. Missing file is fine; a malformed one is not.
	nv.SetConfigName("config")
	nv.SetConfigType("yaml")
	if brmDir, err := FindBRMDir(); err == nil {
		nv.AddConfigPath(brmDir)
	}
	if err := nv.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config.yaml: %w", err)
		}
	}

	v = nv
	return nil
}

// FindBRMDir walks up from the current working directory looking for a
// .brm directory. Returns the .brm path itself, not its parent.
func FindBRMDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return FindBRMDirFrom(cwd)
}

// FindBRMDirFrom walks up from start looking for a .brm directory.
func FindBRMDirFrom(start string) (string, error) {
	for dir := start; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ".brm")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return "", fmt.Errorf("no .brm directory found (run 'brm init' first)")
}

// GetString returns the string value for key, or "" before Initialize.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns the bool value for key, or false before Initialize.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns the int value for key, or 0 before Initialize.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns the duration value for key, or 0 before Initialize.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice returns the string-slice value for key, or an empty slice
// before Initialize.
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// Set overrides a value in the running process. No-op before Initialize.
// cmd/brm uses this to push resolved flag values down to the config layer.
func Set(key string, value interface{}) {
	if v == nil {
		return
	}
	v.Set(key, value)
}

// IsSet reports whether key has a value from any source other than defaults.
func IsSet(key string) bool {
	if v == nil {
		return false
	}
	return v.IsSet(key)
}

// AllSettings returns every key currently known to the config layer.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// ResetForTesting discards the viper instance so the next Initialize starts
// from scratch.
func ResetForTesting() {
	v = nil
}
