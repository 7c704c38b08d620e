// Package configfile reads and writes the .brm/metadata.json workspace file.
//
// metadata.json records which backend a workspace uses and where its database
// lives, so every brm invocation in the workspace resolves the same store
// without flags.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the workspace metadata file inside the .brm directory.
const ConfigFileName = "metadata.json"

// Backend names accepted in metadata.json.
const (
	BackendSQLite = "sqlite"
)

type Config struct {
	Database string `json:"database"`
	Backend  string `json:"backend,omitempty"`

	// TargetDSN selects an external MySQL database for rule SQL execution.
	// Empty means rules run against the metadata database itself.
	TargetDSN string `json:"target_dsn,omitempty"`

	// DefaultLockTTL overrides the built-in edit lock duration, as a
	// time.Duration string ("30m", "1h").
	DefaultLockTTL string `json:"default_lock_ttl,omitempty"`

	// ApprovalStages overrides the default stage order for new approval
	// pipelines. Stage 1 is first; the final entry decides last.
	ApprovalStages []string `json:"approval_stages,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: "brm.db",
		Backend:  BackendSQLite,
	}
}

func ConfigPath(brmDir string) string {
	return filepath.Join(brmDir, ConfigFileName)
}

// Load reads metadata.json from brmDir. A missing file returns (nil, nil) so
// callers can fall back to defaults.
func Load(brmDir string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(brmDir)) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Save(brmDir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(brmDir), data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// DatabasePath resolves the database file relative to the .brm directory.
func (c *Config) DatabasePath(brmDir string) string {
	db := c.Database
	if db == "" {
		db = DefaultConfig().Database
	}
	if filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(brmDir, db)
}

// GetBackend returns the configured backend, defaulting to sqlite.
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return BackendSQLite
	}
	return c.Backend
}
