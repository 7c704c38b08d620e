package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

func TestGraphSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := createTestRule(t, store, "snap-parent")
	child := &types.Rule{Name: "snap-child", OwnerGroup: "BG1", ParentRuleID: &parent.ID}
	if err := store.CreateRule(ctx, child, nil, testActor); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	other := createTestRule(t, store, "snap-other")

	if err := store.AddConflict(ctx, types.Conflict{RuleID1: parent.ID, RuleID2: other.ID, Priority: 2}, testActor); err != nil {
		t.Fatalf("AddConflict failed: %v", err)
	}
	if err := store.AddGlobalCriticalLink(ctx, types.GlobalCriticalLink{GCRRuleID: parent.ID, TargetRuleID: other.ID}, testActor); err != nil {
		t.Fatalf("AddGlobalCriticalLink failed: %v", err)
	}
	expr := fmt.Sprintf("Rule%d AND Rule%d", parent.ID, child.ID)
	if err := store.SetCompositeExpr(ctx, other.ID, expr, testActor); err != nil {
		t.Fatalf("SetCompositeExpr failed: %v", err)
	}

	snap, err := store.GraphSnapshot(ctx)
	if err != nil {
		t.Fatalf("GraphSnapshot failed: %v", err)
	}
	if len(snap.Rules) != 3 {
		t.Errorf("expected 3 rules, got %d", len(snap.Rules))
	}
	if len(snap.Conflicts) != 1 || snap.Conflicts[0].Priority != 2 {
		t.Errorf("unexpected conflicts: %+v", snap.Conflicts)
	}
	if len(snap.Links) != 1 || snap.Links[0].GCRRuleID != parent.ID {
		t.Errorf("unexpected links: %+v", snap.Links)
	}
	if len(snap.Composites) != 1 || snap.Composites[0].RuleID != other.ID {
		t.Errorf("unexpected composites: %+v", snap.Composites)
	}
}

func TestAddConflictRejectsDuplicatePair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := createTestRule(t, store, "conflict-a")
	b := createTestRule(t, store, "conflict-b")

	if err := store.AddConflict(ctx, types.Conflict{RuleID1: a.ID, RuleID2: b.ID, Priority: 1}, testActor); err != nil {
		t.Fatalf("AddConflict failed: %v", err)
	}
	// Same pair in reverse order is still a duplicate.
	err := store.AddConflict(ctx, types.Conflict{RuleID1: b.ID, RuleID2: a.ID, Priority: 1}, testActor)
	if !errors.Is(err, storage.ErrConstraintViolation) {
		t.Errorf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestColumnMappings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := createTestRule(t, store, "map-src")
	dst := createTestRule(t, store, "map-dst")

	if err := store.AddColumnMapping(ctx, types.ColumnMapping{
		RuleID: src.ID, TargetRuleID: dst.ID, SourceColumn: "total", TargetColumn: "amount",
	}, testActor); err != nil {
		t.Fatalf("AddColumnMapping failed: %v", err)
	}

	mappings, err := store.ColumnMappingsForRule(ctx, src.ID)
	if err != nil {
		t.Fatalf("ColumnMappingsForRule failed: %v", err)
	}
	if len(mappings) != 1 || mappings[0].SourceColumn != "total" {
		t.Errorf("unexpected mappings: %+v", mappings)
	}

	// Both sides count as referenced.
	for _, id := range []int64{src.ID, dst.ID} {
		has, err := store.HasColumnMappingRefs(ctx, id)
		if err != nil {
			t.Fatalf("HasColumnMappingRefs failed: %v", err)
		}
		if !has {
			t.Errorf("rule %d should have mapping references", id)
		}
	}
}

func TestColumnMappingsTableAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Simulate a database restored from a dump that predates the table.
	if _, err := store.db.ExecContext(ctx, `DROP TABLE BRM_COLUMN_MAPPINGS`); err != nil {
		t.Fatalf("drop table failed: %v", err)
	}

	rule := createTestRule(t, store, "no-mappings")

	mappings, err := store.ColumnMappingsForRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("ColumnMappingsForRule should degrade, got %v", err)
	}
	if len(mappings) != 0 {
		t.Errorf("expected empty set, got %+v", mappings)
	}

	has, err := store.HasColumnMappingRefs(ctx, rule.ID)
	if err != nil {
		t.Fatalf("HasColumnMappingRefs should degrade, got %v", err)
	}
	if has {
		t.Error("absent table should read as no references")
	}
}

func TestValidationsCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v := &types.Validation{
		Table:  "orders",
		Column: "total",
		Type:   types.ValidationRange,
		Params: "0,100000",
	}
	if err := store.CreateValidation(ctx, v, testActor); err != nil {
		t.Fatalf("CreateValidation failed: %v", err)
	}
	if v.ID == 0 {
		t.Fatal("expected generated validation ID")
	}

	forTable, err := store.ValidationsForTable(ctx, "orders")
	if err != nil {
		t.Fatalf("ValidationsForTable failed: %v", err)
	}
	if len(forTable) != 1 || forTable[0].Type != types.ValidationRange {
		t.Errorf("unexpected validations: %+v", forTable)
	}

	log := &types.ValidationLog{
		ValidationID: v.ID, Table: "orders", Column: "total",
		Type: types.ValidationRange, Result: types.ValidationPass,
	}
	if err := store.AppendValidationLog(ctx, log); err != nil {
		t.Fatalf("AppendValidationLog failed: %v", err)
	}

	if err := store.DeleteValidation(ctx, v.ID, testActor); err != nil {
		t.Fatalf("DeleteValidation failed: %v", err)
	}
	all, err := store.ListValidations(ctx)
	if err != nil {
		t.Fatalf("ListValidations failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no validations after delete, got %+v", all)
	}

	// Log history survives the validation.
	logs, err := store.ListValidationLogs(ctx, 0)
	if err != nil {
		t.Fatalf("ListValidationLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Result != types.ValidationPass {
		t.Errorf("unexpected validation logs: %+v", logs)
	}
}

func TestInvalidValidationType(t *testing.T) {
	store := newTestStore(t)

	v := &types.Validation{Table: "orders", Column: "total", Type: "LENGTH"}
	if err := store.CreateValidation(context.Background(), v, testActor); err == nil {
		t.Error("unknown validation type should be rejected")
	}
}

func TestGroupsAndApprovers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	groups := []types.Group{
		{Name: "BG1", Description: "Business group 1"},
		{Name: "Admin", Description: "Administrators"},
	}
	approvers := map[string][]string{
		"BG1":   {"amy", "ann"},
		"Admin": {"root"},
	}
	if err := store.SeedGroups(ctx, groups, approvers); err != nil {
		t.Fatalf("SeedGroups failed: %v", err)
	}
	// Idempotent.
	if err := store.SeedGroups(ctx, groups, approvers); err != nil {
		t.Fatalf("second SeedGroups failed: %v", err)
	}

	listed, err := store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("expected 2 groups, got %d", len(listed))
	}

	users, err := store.GroupApprovers(ctx, "BG1")
	if err != nil {
		t.Fatalf("GroupApprovers failed: %v", err)
	}
	if len(users) != 2 || users[0] != "amy" {
		t.Errorf("unexpected approvers: %v", users)
	}

	if err := store.AddGroupApprover(ctx, "BG1", "abe", testActor); err != nil {
		t.Fatalf("AddGroupApprover failed: %v", err)
	}
	if err := store.RemoveGroupApprover(ctx, "BG1", "ann", testActor); err != nil {
		t.Fatalf("RemoveGroupApprover failed: %v", err)
	}
	users, err = store.GroupApprovers(ctx, "BG1")
	if err != nil {
		t.Fatalf("GroupApprovers failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 approvers after add/remove, got %v", users)
	}

	if err := store.AddGroupApprover(ctx, "Ghost", "gil", testActor); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown group, got %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetConfig(ctx, "default_lock_ttl", "30m"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	got, err := store.GetConfig(ctx, "default_lock_ttl")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if got != "30m" {
		t.Errorf("value = %q, want 30m", got)
	}

	// Overwrite.
	if err := store.SetConfig(ctx, "default_lock_ttl", "1h"); err != nil {
		t.Fatalf("SetConfig overwrite failed: %v", err)
	}
	got, err = store.GetConfig(ctx, "default_lock_ttl")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if got != "1h" {
		t.Errorf("value = %q, want 1h", got)
	}

	if _, err := store.GetConfig(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDecisionTables(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dt := &types.DecisionTable{TableName: "pricing_matrix", Description: "Price bands"}
	if err := store.CreateDecisionTable(ctx, dt, testActor); err != nil {
		t.Fatalf("CreateDecisionTable failed: %v", err)
	}
	if dt.ID == 0 {
		t.Fatal("expected generated decision table ID")
	}

	got, err := store.GetDecisionTable(ctx, dt.ID)
	if err != nil {
		t.Fatalf("GetDecisionTable failed: %v", err)
	}
	if got.TableName != "pricing_matrix" {
		t.Errorf("table name = %q, want pricing_matrix", got.TableName)
	}

	all, err := store.ListDecisionTables(ctx)
	if err != nil {
		t.Fatalf("ListDecisionTables failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 decision table, got %d", len(all))
	}
}
