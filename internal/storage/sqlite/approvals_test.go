package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

func seedPipeline(t *testing.T, store *Store, ruleID int64, action types.ActionType) {
	t.Helper()
	rows := []types.Approval{
		{GroupName: "BG1", Username: "amy", Stage: 1},
		{GroupName: "BG2", Username: "ben", Stage: 2},
		{GroupName: "FINAL", Username: "fay", Stage: 3},
	}
	if err := store.ReplacePipeline(context.Background(), ruleID, action, rows, testActor); err != nil {
		t.Fatalf("ReplacePipeline failed: %v", err)
	}
}

func TestReplacePipeline(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "pipelined")
	seedPipeline(t, store, rule.ID, types.ActionCreateOrUpdate)

	approvals, err := store.ListApprovals(ctx, rule.ID, types.ActionCreateOrUpdate)
	if err != nil {
		t.Fatalf("ListApprovals failed: %v", err)
	}
	if len(approvals) != 3 {
		t.Fatalf("expected 3 approval rows, got %d", len(approvals))
	}
	for _, a := range approvals {
		if a.ApprovedFlag != types.FlagPending {
			t.Errorf("row %s should start pending, got %d", a.Username, a.ApprovedFlag)
		}
	}

	// Replacing discards the old rows entirely.
	if err := store.ReplacePipeline(ctx, rule.ID, types.ActionCreateOrUpdate,
		[]types.Approval{{GroupName: "BG1", Username: "amy", Stage: 1}}, testActor); err != nil {
		t.Fatalf("second ReplacePipeline failed: %v", err)
	}
	approvals, err = store.ListApprovals(ctx, rule.ID, types.ActionCreateOrUpdate)
	if err != nil {
		t.Fatalf("ListApprovals failed: %v", err)
	}
	if len(approvals) != 1 {
		t.Errorf("expected 1 approval row after replace, got %d", len(approvals))
	}
}

func TestPipelinesAreIndependentPerAction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "two-pipelines")
	seedPipeline(t, store, rule.ID, types.ActionCreateOrUpdate)
	seedPipeline(t, store, rule.ID, types.ActionDeactivate)

	if err := store.ReplacePipeline(ctx, rule.ID, types.ActionDeactivate, nil, testActor); err != nil {
		t.Fatalf("ReplacePipeline failed: %v", err)
	}

	remaining, err := store.ListApprovals(ctx, rule.ID, types.ActionCreateOrUpdate)
	if err != nil {
		t.Fatalf("ListApprovals failed: %v", err)
	}
	if len(remaining) != 3 {
		t.Errorf("clearing DEACTIVATE should not touch CREATE_OR_UPDATE rows, got %d", len(remaining))
	}
}

func TestSetApprovalFlagInTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "approving")
	seedPipeline(t, store, rule.ID, types.ActionCreateOrUpdate)

	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.SetApprovalFlag(ctx, rule.ID, types.ActionCreateOrUpdate, "BG1", "amy", types.FlagApproved, testActor); err != nil {
			return err
		}
		stage, ok, err := tx.MinPendingStage(ctx, rule.ID, types.ActionCreateOrUpdate)
		if err != nil {
			return err
		}
		if !ok || stage != 2 {
			t.Errorf("min pending stage = %d ok=%v, want 2 true", stage, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction failed: %v", err)
	}

	approvals, err := store.ListApprovals(ctx, rule.ID, types.ActionCreateOrUpdate)
	if err != nil {
		t.Fatalf("ListApprovals failed: %v", err)
	}
	for _, a := range approvals {
		if a.Username == "amy" {
			if a.ApprovedFlag != types.FlagApproved {
				t.Errorf("amy's flag = %d, want approved", a.ApprovedFlag)
			}
			if a.ApprovedAt == nil {
				t.Error("approved row should carry a timestamp")
			}
		}
	}

	// A decided row cannot be decided again.
	err = store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.SetApprovalFlag(ctx, rule.ID, types.ActionCreateOrUpdate, "BG1", "amy", types.FlagRejected, testActor)
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound re-deciding a row, got %v", err)
	}
}

func TestMinPendingStageComplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "completing")
	if err := store.ReplacePipeline(ctx, rule.ID, types.ActionCreateOrUpdate,
		[]types.Approval{{GroupName: "BG1", Username: "amy", Stage: 1}}, testActor); err != nil {
		t.Fatalf("ReplacePipeline failed: %v", err)
	}

	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.SetApprovalFlag(ctx, rule.ID, types.ActionCreateOrUpdate, "BG1", "amy", types.FlagApproved, testActor); err != nil {
			return err
		}
		_, ok, err := tx.MinPendingStage(ctx, rule.ID, types.ActionCreateOrUpdate)
		if err != nil {
			return err
		}
		if ok {
			t.Error("pipeline should read complete after last approval")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction failed: %v", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "rollback")
	seedPipeline(t, store, rule.ID, types.ActionCreateOrUpdate)

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.SetApprovalFlag(ctx, rule.ID, types.ActionCreateOrUpdate, "BG1", "amy", types.FlagApproved, testActor); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// The flip must not have committed.
	approvals, err := store.ListApprovals(ctx, rule.ID, types.ActionCreateOrUpdate)
	if err != nil {
		t.Fatalf("ListApprovals failed: %v", err)
	}
	for _, a := range approvals {
		if a.ApprovedFlag != types.FlagPending {
			t.Errorf("row %s should still be pending after rollback, got %d", a.Username, a.ApprovedFlag)
		}
	}
}
