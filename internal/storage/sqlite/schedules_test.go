package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

func TestCreateAndClaimSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "scheduled")

	sch := &types.Schedule{
		RuleID: rule.ID,
		FireAt: time.Now().Add(-time.Minute),
	}
	if err := store.CreateSchedule(ctx, sch, testActor); err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}
	if sch.ID == 0 {
		t.Fatal("expected generated schedule ID")
	}
	if sch.Status != types.ScheduleScheduled {
		t.Errorf("status = %s, want Scheduled", sch.Status)
	}

	due, err := store.DueSchedules(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueSchedules failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != sch.ID {
		t.Fatalf("expected schedule %d due, got %+v", sch.ID, due)
	}

	// First claim wins, second loses.
	ok, err := store.ClaimSchedule(ctx, sch.ID, types.ScheduleExecuted)
	if err != nil {
		t.Fatalf("ClaimSchedule failed: %v", err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}
	ok, err = store.ClaimSchedule(ctx, sch.ID, types.ScheduleExecuted)
	if err != nil {
		t.Fatalf("second ClaimSchedule failed: %v", err)
	}
	if ok {
		t.Fatal("second claim should lose the compare-and-set")
	}

	due, err = store.DueSchedules(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueSchedules failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("claimed schedule should no longer be due, got %+v", due)
	}
}

func TestFutureScheduleNotDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "future")
	sch := &types.Schedule{RuleID: rule.ID, FireAt: time.Now().Add(time.Hour)}
	if err := store.CreateSchedule(ctx, sch, testActor); err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}

	due, err := store.DueSchedules(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueSchedules failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("future schedule should not be due, got %+v", due)
	}
}

func TestCancelSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "cancellable")
	sch := &types.Schedule{RuleID: rule.ID, FireAt: time.Now().Add(time.Hour)}
	if err := store.CreateSchedule(ctx, sch, testActor); err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}

	if err := store.CancelSchedule(ctx, sch.ID, testActor); err != nil {
		t.Fatalf("CancelSchedule failed: %v", err)
	}

	cancelled := types.ScheduleCancelled
	schedules, err := store.ListSchedules(ctx, types.ScheduleFilter{Status: &cancelled})
	if err != nil {
		t.Fatalf("ListSchedules failed: %v", err)
	}
	if len(schedules) != 1 || schedules[0].ID != sch.ID {
		t.Errorf("expected schedule %d cancelled, got %+v", sch.ID, schedules)
	}

	// A schedule that already fired cannot be cancelled.
	fired := &types.Schedule{RuleID: rule.ID, FireAt: time.Now().Add(-time.Minute)}
	if err := store.CreateSchedule(ctx, fired, testActor); err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}
	if _, err := store.ClaimSchedule(ctx, fired.ID, types.ScheduleExecuted); err != nil {
		t.Fatalf("ClaimSchedule failed: %v", err)
	}
	if err := store.CancelSchedule(ctx, fired.ID, testActor); err == nil {
		t.Error("cancelling an executed schedule should fail")
	}
}

func TestCreateScheduleMissingRule(t *testing.T) {
	store := newTestStore(t)

	sch := &types.Schedule{RuleID: 9999, FireAt: time.Now()}
	err := store.CreateSchedule(context.Background(), sch, testActor)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutionLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "logged")

	for i, passed := range []bool{true, false, true} {
		entry := &types.ExecutionLog{
			RuleID:      rule.ID,
			Passed:      passed,
			Message:     "run",
			RecordCount: int64(i),
			ElapsedMS:   int64(10 * i),
		}
		if err := store.AppendExecutionLog(ctx, entry); err != nil {
			t.Fatalf("AppendExecutionLog failed: %v", err)
		}
		if entry.ID == 0 {
			t.Fatal("expected generated execution ID")
		}
	}

	logs, err := store.ListExecutionLogs(ctx, rule.ID, 2)
	if err != nil {
		t.Fatalf("ListExecutionLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs with limit, got %d", len(logs))
	}
	// Newest first.
	if logs[0].RecordCount != 2 || logs[0].Passed != true {
		t.Errorf("unexpected newest log: %+v", logs[0])
	}

	all, err := store.ListExecutionLogs(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListExecutionLogs(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 logs across rules, got %d", len(all))
	}
}
