package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

var testActor = types.Actor{UserID: "alice", Group: "BG1"}

func createTestRule(t *testing.T, store *Store, name string) *types.Rule {
	t.Helper()
	rule := &types.Rule{
		Name:       name,
		SQL:        "SELECT 1",
		OwnerGroup: "BG1",
	}
	if err := store.CreateRule(context.Background(), rule, nil, testActor); err != nil {
		t.Fatalf("CreateRule(%s) failed: %v", name, err)
	}
	return rule
}

func TestCreateAndGetRule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := &types.Rule{
		Name:       "Validate order totals",
		SQL:        "SELECT CASE WHEN COUNT(*) = 0 THEN 1 ELSE 0 END FROM orders WHERE total < 0",
		OwnerGroup: "BG1",
	}
	deps := []types.TableDependency{
		{Table: "orders", Column: "total", Op: types.ColumnRead},
	}
	if err := store.CreateRule(ctx, rule, deps, testActor); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if rule.ID == 0 {
		t.Fatal("expected generated rule ID")
	}

	got, err := store.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.Name != rule.Name {
		t.Errorf("name = %q, want %q", got.Name, rule.Name)
	}
	if got.Status != types.StatusInactive {
		t.Errorf("status = %s, want INACTIVE", got.Status)
	}
	if got.ApprovalStatus != types.ApprovalInProgress {
		t.Errorf("approval status = %s, want APPROVAL_IN_PROGRESS", got.ApprovalStatus)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
	if got.LifecycleState != types.LifecycleUnderApproval {
		t.Errorf("lifecycle state = %s, want UNDER_APPROVAL", got.LifecycleState)
	}
	if got.CreatedBy != "alice" {
		t.Errorf("created by = %q, want alice", got.CreatedBy)
	}

	gotDeps, err := store.GetTableDeps(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetTableDeps failed: %v", err)
	}
	if len(gotDeps) != 1 || gotDeps[0].Table != "orders" || gotDeps[0].Op != types.ColumnRead {
		t.Errorf("unexpected deps: %+v", gotDeps)
	}

	// Creation must leave an audit trail.
	recordID := rule.ID
	entries, err := store.ListAudit(ctx, types.AuditFilter{TableName: types.TableRules, RecordID: &recordID})
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != types.AuditInsert {
		t.Errorf("expected one INSERT audit entry, got %+v", entries)
	}
}

func TestCreateRuleDuplicateName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createTestRule(t, store, "dup")

	err := store.CreateRule(ctx, &types.Rule{Name: "dup", OwnerGroup: "BG1"}, nil, testActor)
	if !errors.Is(err, storage.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}

	// Same name in a different group is fine.
	other := &types.Rule{Name: "dup", OwnerGroup: "BG2"}
	if err := store.CreateRule(ctx, other, nil, types.Actor{UserID: "bob", Group: "BG2"}); err != nil {
		t.Errorf("same name in different group should succeed: %v", err)
	}
}

func TestCreateRuleRequiresActor(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateRule(context.Background(), &types.Rule{Name: "x", OwnerGroup: "BG1"}, nil, types.Actor{})
	if !errors.Is(err, storage.ErrNoActor) {
		t.Errorf("expected ErrNoActor, got %v", err)
	}
}

func TestCreateRuleMissingParent(t *testing.T) {
	store := newTestStore(t)

	missing := int64(9999)
	err := store.CreateRule(context.Background(),
		&types.Rule{Name: "child", OwnerGroup: "BG1", ParentRuleID: &missing}, nil, testActor)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing parent, got %v", err)
	}
}

func TestGetRuleByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "lookup")

	got, err := store.GetRuleByName(ctx, "BG1", "lookup")
	if err != nil {
		t.Fatalf("GetRuleByName failed: %v", err)
	}
	if got.ID != rule.ID {
		t.Errorf("ID = %d, want %d", got.ID, rule.ID)
	}

	if _, err := store.GetRuleByName(ctx, "BG1", "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRuleFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "updatable")

	updated, err := store.UpdateRuleFields(ctx, rule.ID, map[string]interface{}{
		"rule_sql": "SELECT 2",
		"status":   types.StatusActive,
	}, types.AuditStatusChange, testActor)
	if err != nil {
		t.Fatalf("UpdateRuleFields failed: %v", err)
	}
	if updated.SQL != "SELECT 2" {
		t.Errorf("sql = %q, want SELECT 2", updated.SQL)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2 after update", updated.Version)
	}
	if updated.Status != types.StatusActive {
		t.Errorf("status = %s, want ACTIVE", updated.Status)
	}
	if updated.LifecycleState != types.LifecycleActive {
		t.Errorf("lifecycle state = %s, want ACTIVE", updated.LifecycleState)
	}
	if updated.UpdatedBy != "alice" {
		t.Errorf("updated by = %q, want alice", updated.UpdatedBy)
	}

	recordID := rule.ID
	entries, err := store.ListAudit(ctx, types.AuditFilter{
		TableName: types.TableRules, RecordID: &recordID, Action: types.AuditStatusChange,
	})
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one STATUS_CHANGE audit entry, got %d", len(entries))
	}
	if entries[0].OldData == "" || entries[0].NewData == "" {
		t.Error("audit entry should carry old and new snapshots")
	}
}

func TestUpdateRuleFieldsRejectsUnknownField(t *testing.T) {
	store := newTestStore(t)

	rule := createTestRule(t, store, "strict")

	_, err := store.UpdateRuleFields(context.Background(), rule.ID,
		map[string]interface{}{"version": 99}, types.AuditUpdate, testActor)
	if err == nil {
		t.Fatal("expected error for non-whitelisted field")
	}

	_, err = store.UpdateRuleFields(context.Background(), rule.ID,
		map[string]interface{}{"status": "BOGUS"}, types.AuditUpdate, testActor)
	if err == nil {
		t.Fatal("expected error for invalid status value")
	}
}

func TestDeleteRuleCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "doomed")
	other := createTestRule(t, store, "survivor")

	if err := store.AddConflict(ctx, types.Conflict{RuleID1: rule.ID, RuleID2: other.ID, Priority: 1}, testActor); err != nil {
		t.Fatalf("AddConflict failed: %v", err)
	}
	if _, err := store.AcquireLock(ctx, rule.ID, testActor, defaultTestTTL, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	if err := store.DeleteRule(ctx, rule.ID, testActor); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}

	if _, err := store.GetRule(ctx, rule.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	snap, err := store.GraphSnapshot(ctx)
	if err != nil {
		t.Fatalf("GraphSnapshot failed: %v", err)
	}
	if len(snap.Conflicts) != 0 {
		t.Errorf("conflicts should be removed with the rule, got %+v", snap.Conflicts)
	}

	// The audit trail survives the rule.
	recordID := rule.ID
	entries, err := store.ListAudit(ctx, types.AuditFilter{TableName: types.TableRules, RecordID: &recordID})
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	var sawDelete bool
	for _, e := range entries {
		if e.Action == types.AuditDelete {
			sawDelete = true
			if e.OldData == "" {
				t.Error("DELETE audit entry should carry the old snapshot")
			}
		}
	}
	if !sawDelete {
		t.Error("expected a DELETE audit entry")
	}
}

func TestListRulesFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := createTestRule(t, store, "alpha")
	createTestRule(t, store, "beta")

	globalRule := &types.Rule{
		Name: "gamma", OwnerGroup: "BG2", IsGlobal: true,
		CriticalScope: types.ScopeGlobal,
	}
	if err := store.CreateRule(ctx, globalRule, nil, types.Actor{UserID: "root", Group: "Admin"}); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	if _, err := store.UpdateRuleFields(ctx, a.ID,
		map[string]interface{}{"status": types.StatusActive}, types.AuditStatusChange, testActor); err != nil {
		t.Fatalf("UpdateRuleFields failed: %v", err)
	}

	t.Run("by owner group", func(t *testing.T) {
		rules, err := store.ListRules(ctx, types.RuleFilter{OwnerGroup: "BG1"})
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Errorf("expected 2 BG1 rules, got %d", len(rules))
		}
	})

	t.Run("by status", func(t *testing.T) {
		active := types.StatusActive
		rules, err := store.ListRules(ctx, types.RuleFilter{Status: &active})
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(rules) != 1 || rules[0].ID != a.ID {
			t.Errorf("expected only rule %d active, got %+v", a.ID, rules)
		}
	})

	t.Run("critical only", func(t *testing.T) {
		rules, err := store.ListRules(ctx, types.RuleFilter{CriticalOnly: true})
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(rules) != 1 || rules[0].Name != "gamma" {
			t.Errorf("expected only the global rule, got %+v", rules)
		}
	})

	t.Run("name contains", func(t *testing.T) {
		rules, err := store.ListRules(ctx, types.RuleFilter{NameContains: "et"})
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(rules) != 1 || rules[0].Name != "beta" {
			t.Errorf("expected beta, got %+v", rules)
		}
	})

	t.Run("limit", func(t *testing.T) {
		rules, err := store.ListRules(ctx, types.RuleFilter{Limit: 2})
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Errorf("expected 2 rules with limit, got %d", len(rules))
		}
	})
}

func TestListChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := createTestRule(t, store, "parent")
	child := &types.Rule{Name: "child", OwnerGroup: "BG1", ParentRuleID: &parent.ID}
	if err := store.CreateRule(ctx, child, nil, testActor); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	children, err := store.ListChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("ListChildren failed: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Errorf("expected one child %d, got %+v", child.ID, children)
	}
}
