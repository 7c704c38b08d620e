package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key describes a brm configuration key.
type Key struct {
	Name        string // Full key name (e.g., "scheduler.interval")
	Description string // Human-readable description
	EnvVar      string // Corresponding env var name (empty = no env mapping)
	Default     string // Default value as shown to users (empty = no default)
	Validate    func(string) error
}

// Keys defines every configuration key brm understands. `brm config list`
// renders this table, and `brm config set` validates against it.
var Keys = []Key{
	// Identity and output
	{
		Name:        "actor",
		Description: "Username recorded on audit entries and locks",
		EnvVar:      "BRM_ACTOR",
	},
	{
		Name:        "group",
		Description: "Default business group for new rules",
		EnvVar:      "BRM_GROUP",
	},
	{
		Name:        "json",
		Description: "Emit machine-readable JSON instead of styled text",
		EnvVar:      "BRM_JSON",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Name:        "no-color",
		Description: "Disable ANSI styling in terminal output",
		EnvVar:      "BRM_NO_COLOR",
		Default:     "false",
		Validate:    validateBool,
	},

	// Databases
	{
		Name:        "db",
		Description: "Path to the rules database (overrides .brm/metadata.json)",
		EnvVar:      "BRM_DB",
	},
	{
		Name:        "target-dsn",
		Description: "MySQL DSN of the database rules execute against",
		EnvVar:      "BRM_TARGET_DSN",
	},

	// Locking
	{
		Name:        "lock-ttl",
		Description: "Lease duration for rule edit locks",
		EnvVar:      "BRM_LOCK_TTL",
		Default:     "30m",
		Validate:    validateDuration,
	},

	// Scheduler
	{
		Name:        "scheduler.interval",
		Description: "How often the daemon scans for due schedules",
		EnvVar:      "BRM_SCHEDULER_INTERVAL",
		Default:     "60s",
		Validate:    validateDuration,
	},
	{
		Name:        "scheduler.parallelism",
		Description: "Due schedules executed concurrently per scan",
		EnvVar:      "BRM_SCHEDULER_PARALLELISM",
		Default:     "1",
		Validate:    validatePositiveInt,
	},

	// Approval pipeline
	{
		Name:        "approval.final-approver",
		Description: "Username recorded on the final approval stage",
		EnvVar:      "BRM_FINAL_APPROVER",
		Default:     "admin",
	},

	// SQL analysis
	{
		Name:        "analyzer.default-schema",
		Description: "Schema assumed for unqualified table names in rule SQL",
	},

	// Daemon
	{
		Name:        "daemon.log-path",
		Description: "Rotating daemon log destination (default .brm/daemon.log)",
		EnvVar:      "BRM_DAEMON_LOG",
	},
}

// keyMap is a lookup table built from Keys.
var keyMap map[string]*Key

func init() {
	keyMap = make(map[string]*Key, len(Keys))
	for i := range Keys {
		keyMap[Keys[i].Name] = &Keys[i]
	}
}

// LookupKey returns the Key definition if name is a known configuration key.
// Returns nil otherwise.
func LookupKey(name string) *Key {
	return keyMap[name]
}

// ValidateKey checks whether a known key accepts the given value. Unknown
// keys pass; they land in the database config table as free-form settings.
func ValidateKey(name, value string) error {
	k := keyMap[name]
	if k == nil {
		return nil
	}
	if k.Validate != nil {
		if err := k.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
	}
	return nil
}

// KeyEnvMap returns a mapping from key name to environment variable name.
func KeyEnvMap() map[string]string {
	m := make(map[string]string, len(Keys))
	for _, k := range Keys {
		if k.EnvVar != "" {
			m[k.Name] = k.EnvVar
		}
	}
	return m
}

// Validation helpers

func validateDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a duration like 30s or 5m, got %q", value)
	}
	return nil
}

func validatePositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "yes", "no":
		return nil
	default:
		return fmt.Errorf("must be true or false, got %q", value)
	}
}
