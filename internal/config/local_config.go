package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig represents the subset of config.yaml fields that need to be
// read directly from the file rather than through the viper singleton. This
// is needed when the CWD has changed since config initialization, or when
// checking config before viper is initialized (the daemon re-reads its
// settings this way after daemonizing).
//
// Using proper YAML parsing handles edge cases like comments, indentation,
// and special characters that regex-based parsing would miss.
type LocalConfig struct {
	Actor     string `yaml:"actor"`
	Group     string `yaml:"group"`
	TargetDSN string `yaml:"target-dsn"`
	NoColor   bool   `yaml:"no-color"`
}

// LoadLocalConfig reads and parses config.yaml directly from the specified
// .brm directory, bypassing the viper singleton.
//
// Returns an empty LocalConfig (not nil) if the file doesn't exist or can't
// be parsed.
func LoadLocalConfig(brmDir string) *LocalConfig {
	configPath := filepath.Join(brmDir, "config.yaml")
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from brmDir
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}

	return &cfg
}

// LoadLocalConfigWithEnv reads config.yaml and applies environment variable
// overrides. Environment variables take precedence over config file values.
//
// Supported environment variables:
// - BRM_ACTOR: overrides actor
// - BRM_GROUP: overrides group
// - BRM_TARGET_DSN: overrides target-dsn
func LoadLocalConfigWithEnv(brmDir string) *LocalConfig {
	cfg := LoadLocalConfig(brmDir)

	if envActor := os.Getenv("BRM_ACTOR"); envActor != "" {
		cfg.Actor = envActor
	}
	if envGroup := os.Getenv("BRM_GROUP"); envGroup != "" {
		cfg.Group = envGroup
	}
	if envDSN := os.Getenv("BRM_TARGET_DSN"); envDSN != "" {
		cfg.TargetDSN = envDSN
	}

	return cfg
}

// GetLocalActor reads actor from the local config.yaml file, with the
// BRM_ACTOR environment variable taking precedence.
func GetLocalActor(brmDir string) string {
	return LoadLocalConfigWithEnv(brmDir).Actor
}

// IsNoColorConfigured checks if no-color: true is set in config.yaml.
func IsNoColorConfigured(brmDir string) bool {
	return LoadLocalConfig(brmDir).NoColor
}
