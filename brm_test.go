package brm_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brmkit/brm"
	"github.com/brmkit/brm/internal/types"
)

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "rules.db")

	ctx := context.Background()
	store, err := brm.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	rule := &brm.Rule{
		Name:       "facade-smoke",
		SQL:        "UPDATE t SET a = 1",
		OwnerGroup: "BG1",
		CreatedBy:  "tester",
	}
	rule.SetDefaults()
	actor := brm.Actor{UserID: "tester", Group: "BG1"}
	if err := store.CreateRule(ctx, rule, nil, actor); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if rule.ID == 0 {
		t.Error("expected assigned rule ID")
	}

	got, err := store.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.Status != brm.StatusInactive {
		t.Errorf("new rule status = %q, want %q", got.Status, brm.StatusInactive)
	}
}

func TestOpenInMemory(t *testing.T) {
	ctx := context.Background()
	store, err := brm.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer store.Close()

	rules, err := store.ListRules(ctx, brm.RuleFilter{})
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("fresh database has %d rules, want 0", len(rules))
	}
}

func TestOpenFromConfig(t *testing.T) {
	tmpDir := t.TempDir()
	brmDir := filepath.Join(tmpDir, ".brm")
	if err := os.MkdirAll(brmDir, 0755); err != nil {
		t.Fatalf("failed to create .brm dir: %v", err)
	}

	metadata := `{"backend":"sqlite","database":"custom.db"}`
	if err := os.WriteFile(filepath.Join(brmDir, "metadata.json"), []byte(metadata), 0644); err != nil {
		t.Fatalf("failed to write metadata.json: %v", err)
	}

	ctx := context.Background()
	store, err := brm.OpenFromConfig(ctx, brmDir)
	if err != nil {
		t.Fatalf("OpenFromConfig failed: %v", err)
	}
	defer store.Close()

	if _, err := store.ListRules(ctx, brm.RuleFilter{}); err != nil {
		t.Errorf("ListRules on configured store failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(brmDir, "custom.db")); err != nil {
		t.Errorf("expected database at configured path: %v", err)
	}
}

func TestOpenFromConfig_MissingMetadata(t *testing.T) {
	// No metadata.json: sqlite defaults apply.
	brmDir := t.TempDir()

	ctx := context.Background()
	store, err := brm.OpenFromConfig(ctx, brmDir)
	if err != nil {
		t.Fatalf("OpenFromConfig (defaults) failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(brmDir, "brm.db")); err != nil {
		t.Errorf("expected default database in brm dir: %v", err)
	}
}

// Test that exported constants have correct values
func TestConstants(t *testing.T) {
	if brm.StatusInactive != types.RuleStatus("INACTIVE") {
		t.Errorf("StatusInactive = %q, want %q", brm.StatusInactive, "INACTIVE")
	}
	if brm.StatusActive != types.RuleStatus("ACTIVE") {
		t.Errorf("StatusActive = %q, want %q", brm.StatusActive, "ACTIVE")
	}
	if brm.StatusDeactivateInProgress != types.RuleStatus("DEACTIVATE_IN_PROGRESS") {
		t.Errorf("StatusDeactivateInProgress = %q, want %q", brm.StatusDeactivateInProgress, "DEACTIVATE_IN_PROGRESS")
	}
	if brm.StatusDeleteInProgress != types.RuleStatus("DELETE_IN_PROGRESS") {
		t.Errorf("StatusDeleteInProgress = %q, want %q", brm.StatusDeleteInProgress, "DELETE_IN_PROGRESS")
	}

	if brm.ActionCreateOrUpdate != types.ActionType("CREATE_OR_UPDATE") {
		t.Errorf("ActionCreateOrUpdate = %q, want %q", brm.ActionCreateOrUpdate, "CREATE_OR_UPDATE")
	}
	if brm.ActionDeactivate != types.ActionType("DEACTIVATE") {
		t.Errorf("ActionDeactivate = %q, want %q", brm.ActionDeactivate, "DEACTIVATE")
	}
	if brm.ActionDelete != types.ActionType("DELETE") {
		t.Errorf("ActionDelete = %q, want %q", brm.ActionDelete, "DELETE")
	}
}
