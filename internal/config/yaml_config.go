package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// YamlOnlyKeys are configuration keys that must be stored in config.yaml
// rather than the rules database. These are "startup" settings that are
// read before the database is opened, so writing them to the database
// config table would silently have no effect.
var YamlOnlyKeys = map[string]bool{
	// Output flags
	"json":     true,
	"no-color": true,

	// Database and identity
	"db":         true,
	"actor":      true,
	"group":      true,
	"target-dsn": true,

	// Locking
	"lock-ttl": true,
}

// yamlOnlyPrefixes are whole namespaces the process reads at startup.
var yamlOnlyPrefixes = []string{"scheduler.", "approval.", "analyzer.", "daemon."}

// IsYamlOnlyKey returns true if the given key should be stored in
// config.yaml rather than the database config table.
func IsYamlOnlyKey(key string) bool {
	if YamlOnlyKeys[normalizeYamlKey(key)] {
		return true
	}
	for _, prefix := range yamlOnlyPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// yamlKeyAliases maps dotted spellings to the canonical flat key so both
// forms address the same config.yaml line.
var yamlKeyAliases = map[string]string{
	"lock.ttl":   "lock-ttl",
	"target.dsn": "target-dsn",
}

// normalizeYamlKey resolves key aliases to their canonical form.
func normalizeYamlKey(key string) string {
	if canonical, ok := yamlKeyAliases[key]; ok {
		return canonical
	}
	return key
}

// SetYamlConfig writes a key into the project's config.yaml, updating an
// existing line (commented or not) in place or appending a new one.
func SetYamlConfig(key, value string) error {
	key = normalizeYamlKey(key)

	path, err := findProjectConfigYaml()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path) //nolint:gosec // path comes from FindBRMDir
	if err != nil {
		return fmt.Errorf("read config.yaml: %w", err)
	}
	updated := updateYamlKey(string(content), key, value)
	if err := os.WriteFile(path, []byte(updated), 0600); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}
	return nil
}

// GetYamlConfig reads a key from the loaded yaml settings. Returns the
// empty string when the key is absent or commented out.
func GetYamlConfig(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(normalizeYamlKey(key))
}

// findProjectConfigYaml locates the project's .brm/config.yaml.
func findProjectConfigYaml() (string, error) {
	brmDir, err := FindBRMDir()
	if err != nil {
		return "", err
	}

	configPath := filepath.Join(brmDir, "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		return "", fmt.Errorf("no .brm/config.yaml found (run 'brm init' first)")
	}
	return configPath, nil
}

// updateYamlKey rewrites every line carrying the key, commented or not,
// keeping its indentation. A key with no line yet is appended at the end.
// Replacing all occurrences matters: a file can hold both a commented
// template line and a live value, and leaving either stale would let the
// reader pick up the wrong one.
func updateYamlKey(content, key, value string) string {
	newLine := key + ": " + formatYamlValue(value)
	keyRe := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	lines := strings.Split(content, "\n")
	found := false
	for i, line := range lines {
		if m := keyRe.FindStringSubmatch(line); m != nil {
			lines[i] = m[1] + newLine
			found = true
		}
	}
	if found {
		return strings.Join(lines, "\n")
	}

	trimmed := strings.TrimRight(content, "\n")
	if trimmed == "" {
		return newLine + "\n"
	}
	return trimmed + "\n\n" + newLine + "\n"
}

// formatYamlValue renders a value so the yaml reader sees the intended
// type: booleans and numbers stay bare, strings with special characters
// get quoted.
func formatYamlValue(value string) string {
	switch {
	case strings.EqualFold(value, "true"), strings.EqualFold(value, "false"):
		return strings.ToLower(value)
	case isNumeric(value), isDuration(value):
		return value
	case needsQuoting(value):
		return strconv.Quote(value)
	default:
		return value
	}
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// isDuration accepts Go duration syntax ("30s", "5m", "1h30m"), which the
// config readers parse back with time.ParseDuration.
func isDuration(s string) bool {
	_, err := time.ParseDuration(s)
	return err == nil
}

func needsQuoting(s string) bool {
	if strings.TrimSpace(s) != s {
		return true
	}
	return strings.ContainsAny(s, ":#[]{},&*!|>'\"%@`")
}
