package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func initConfig(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	initConfig(t)
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}

	for key, want := range map[string]bool{"json": false, "no-color": false} {
		if got := GetBool(key); got != want {
			t.Errorf("GetBool(%q) = %v, want %v", key, got, want)
		}
	}
	for key, want := range map[string]string{
		"db":                      "",
		"actor":                   "",
		"group":                   "",
		"target-dsn":              "",
		"approval.final-approver": "admin",
	} {
		if got := GetString(key); got != want {
			t.Errorf("GetString(%q) = %q, want %q", key, got, want)
		}
	}
	for key, want := range map[string]time.Duration{
		"lock-ttl":           30 * time.Minute,
		"scheduler.interval": 60 * time.Second,
	} {
		if got := GetDuration(key); got != want {
			t.Errorf("GetDuration(%q) = %v, want %v", key, got, want)
		}
	}
	if got := GetInt("scheduler.parallelism"); got != 1 {
		t.Errorf("GetInt(scheduler.parallelism) = %d, want 1", got)
	}
}

func TestEnvironmentBinding(t *testing.T) {
	t.Setenv("BRM_JSON", "true")
	t.Setenv("BRM_ACTOR", "testuser")
	t.Setenv("BRM_DB", "/tmp/test.db")
	t.Setenv("BRM_TARGET_DSN", "root@tcp(db:3306)/app")
	t.Setenv("BRM_LOCK_TTL", "10m")
	t.Setenv("BRM_SCHEDULER_INTERVAL", "5s")
	t.Setenv("BRM_SCHEDULER_PARALLELISM", "4")

	// Env bindings are read at Initialize time.
	initConfig(t)

	if !GetBool("json") {
		t.Error("BRM_JSON=true not picked up")
	}
	if got := GetString("actor"); got != "testuser" {
		t.Errorf("actor = %q, want testuser", got)
	}
	if got := GetString("db"); got != "/tmp/test.db" {
		t.Errorf("db = %q, want /tmp/test.db", got)
	}
	if got := GetString("target-dsn"); got != "root@tcp(db:3306)/app" {
		t.Errorf("target-dsn = %q", got)
	}
	if got := GetDuration("lock-ttl"); got != 10*time.Minute {
		t.Errorf("lock-ttl = %v, want 10m", got)
	}
	if got := GetDuration("scheduler.interval"); got != 5*time.Second {
		t.Errorf("scheduler.interval = %v, want 5s", got)
	}
	if got := GetInt("scheduler.parallelism"); got != 4 {
		t.Errorf("scheduler.parallelism = %d, want 4", got)
	}
}

func TestConfigFile(t *testing.T) {
	writeProjectConfig(t, `
json: true
actor: configuser
lock-ttl: 15m
scheduler:
  interval: 30s
  parallelism: 2
`)
	initConfig(t)

	if !GetBool("json") {
		t.Error("json from config file not applied")
	}
	if got := GetString("actor"); got != "configuser" {
		t.Errorf("actor = %q, want configuser", got)
	}
	if got := GetDuration("lock-ttl"); got != 15*time.Minute {
		t.Errorf("lock-ttl = %v, want 15m", got)
	}
	if got := GetDuration("scheduler.interval"); got != 30*time.Second {
		t.Errorf("scheduler.interval = %v, want 30s", got)
	}
	if got := GetInt("scheduler.parallelism"); got != 2 {
		t.Errorf("scheduler.parallelism = %d, want 2", got)
	}
}

// Precedence, high to low: Set, environment, config file, defaults.
func TestConfigPrecedence(t *testing.T) {
	writeProjectConfig(t, "json: false\n")

	initConfig(t)
	if GetBool("json") {
		t.Error("config file value should be false")
	}

	t.Setenv("BRM_JSON", "true")
	initConfig(t)
	if !GetBool("json") {
		t.Error("env var should override the config file")
	}

	Set("json", false)
	if GetBool("json") {
		t.Error("Set should override the env var")
	}
}

func TestSetAndGet(t *testing.T) {
	initConfig(t)

	Set("test-key", "test-value")
	if got := GetString("test-key"); got != "test-value" {
		t.Errorf("GetString(test-key) = %q", got)
	}
	Set("test-int", 42)
	if got := GetInt("test-int"); got != 42 {
		t.Errorf("GetInt(test-int) = %d", got)
	}

	Set("custom-key", "custom-value")
	settings := AllSettings()
	if val, ok := settings["custom-key"]; !ok || val != "custom-value" {
		t.Errorf("AllSettings() missing custom-key: got %v", val)
	}
}

func TestGetStringSliceFromConfig(t *testing.T) {
	writeProjectConfig(t, `
approval:
  stages:
    - BG1
    - BG2
    - BG3
`)
	initConfig(t)

	got := GetStringSlice("approval.stages")
	if len(got) != 3 || got[0] != "BG1" || got[1] != "BG2" || got[2] != "BG3" {
		t.Errorf("GetStringSlice(approval.stages) = %v, want [BG1 BG2 BG3]", got)
	}
}

func TestFindBRMDirFrom(t *testing.T) {
	tmpDir := t.TempDir()

	brmDir := filepath.Join(tmpDir, ".brm")
	if err := os.MkdirAll(brmDir, 0750); err != nil {
		t.Fatalf("mkdir .brm: %v", err)
	}
	nested := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0750); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}

	// Walks up from a nested directory to the project root
	got, err := FindBRMDirFrom(nested)
	if err != nil {
		t.Fatalf("FindBRMDirFrom(%q): %v", nested, err)
	}
	if got != brmDir {
		t.Errorf("FindBRMDirFrom(%q) = %q, want %q", nested, got, brmDir)
	}

	// No .brm anywhere above
	if _, err := FindBRMDirFrom(t.TempDir()); err == nil {
		t.Error("FindBRMDirFrom with no .brm directory should error")
	}
}

// Every accessor must tolerate the pre-Initialize nil instance.
func TestNilViperBehavior(t *testing.T) {
	savedV := v
	v = nil
	defer func() { v = savedV }()

	if got := GetString("any-key"); got != "" {
		t.Errorf("GetString = %q, want empty", got)
	}
	if GetBool("any-key") {
		t.Error("GetBool = true, want false")
	}
	if got := GetInt("any-key"); got != 0 {
		t.Errorf("GetInt = %d, want 0", got)
	}
	if got := GetDuration("any-key"); got != 0 {
		t.Errorf("GetDuration = %v, want 0", got)
	}
	if got := GetStringSlice("any-key"); len(got) != 0 {
		t.Errorf("GetStringSlice = %v, want empty", got)
	}
	if got := AllSettings(); len(got) != 0 {
		t.Errorf("AllSettings = %v, want empty", got)
	}
	if IsSet("any-key") {
		t.Error("IsSet = true, want false")
	}
	Set("any-key", "any-value") // must not panic
}
