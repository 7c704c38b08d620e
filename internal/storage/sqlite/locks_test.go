package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

const defaultTestTTL = 30 * time.Minute

func TestAcquireLock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "locked")

	lock, err := store.AcquireLock(ctx, rule.ID, testActor, defaultTestTTL, false)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if lock.LockedBy != "alice" || !lock.Active {
		t.Errorf("unexpected lock: %+v", lock)
	}

	// A second user is told who holds the lock.
	bob := types.Actor{UserID: "bob", Group: "BG2"}
	_, err = store.AcquireLock(ctx, rule.ID, bob, defaultTestTTL, false)
	var held *storage.LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected LockHeldError, got %v", err)
	}
	if held.Holder != "alice" {
		t.Errorf("holder = %q, want alice", held.Holder)
	}

	// The holder re-acquiring extends rather than fails.
	if _, err := store.AcquireLock(ctx, rule.ID, testActor, defaultTestTTL, false); err != nil {
		t.Errorf("holder should be able to re-acquire: %v", err)
	}
}

func TestAcquireLockExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "expiring")

	// A 1ns TTL lapses immediately.
	if _, err := store.AcquireLock(ctx, rule.ID, testActor, time.Nanosecond, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	bob := types.Actor{UserID: "bob", Group: "BG2"}
	lock, err := store.AcquireLock(ctx, rule.ID, bob, defaultTestTTL, false)
	if err != nil {
		t.Fatalf("expired lock should be treated as absent: %v", err)
	}
	if lock.LockedBy != "bob" {
		t.Errorf("locked by = %q, want bob", lock.LockedBy)
	}
}

func TestForceLock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "forced")

	if _, err := store.AcquireLock(ctx, rule.ID, testActor, defaultTestTTL, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	admin := types.Actor{UserID: "root", Group: "Admin"}
	lock, err := store.AcquireLock(ctx, rule.ID, admin, defaultTestTTL, true)
	if err != nil {
		t.Fatalf("force acquire failed: %v", err)
	}
	if lock.LockedBy != "root" || !lock.Force {
		t.Errorf("unexpected lock after force: %+v", lock)
	}

	// The original holder lost the lock.
	current, err := store.LockOwner(ctx, rule.ID)
	if err != nil {
		t.Fatalf("LockOwner failed: %v", err)
	}
	if current == nil || current.LockedBy != "root" {
		t.Errorf("expected root to hold the lock, got %+v", current)
	}
}

func TestReleaseLock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "releasable")

	if _, err := store.AcquireLock(ctx, rule.ID, testActor, defaultTestTTL, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	// A non-holder cannot release.
	bob := types.Actor{UserID: "bob", Group: "BG2"}
	err := store.ReleaseLock(ctx, rule.ID, bob)
	var held *storage.LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected LockHeldError for non-holder release, got %v", err)
	}

	// The holder can.
	if err := store.ReleaseLock(ctx, rule.ID, testActor); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	current, err := store.LockOwner(ctx, rule.ID)
	if err != nil {
		t.Fatalf("LockOwner failed: %v", err)
	}
	if current != nil {
		t.Errorf("expected no lock after release, got %+v", current)
	}

	// Releasing an unheld lock is a no-op.
	if err := store.ReleaseLock(ctx, rule.ID, testActor); err != nil {
		t.Errorf("releasing unheld lock should be a no-op: %v", err)
	}
}

func TestReleaseLockAsAdmin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "admin-released")

	if _, err := store.AcquireLock(ctx, rule.ID, testActor, defaultTestTTL, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	admin := types.Actor{UserID: "root", Group: "Admin"}
	if err := store.ReleaseLock(ctx, rule.ID, admin); err != nil {
		t.Fatalf("admin release failed: %v", err)
	}
	current, err := store.LockOwner(ctx, rule.ID)
	if err != nil {
		t.Fatalf("LockOwner failed: %v", err)
	}
	if current != nil {
		t.Errorf("expected no lock after admin release, got %+v", current)
	}
}

func TestLockOwnerLazyExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createTestRule(t, store, "lazy")

	if _, err := store.AcquireLock(ctx, rule.ID, testActor, time.Nanosecond, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	current, err := store.LockOwner(ctx, rule.ID)
	if err != nil {
		t.Fatalf("LockOwner failed: %v", err)
	}
	if current != nil {
		t.Errorf("expired lock should read as absent, got %+v", current)
	}
}

func TestAcquireLockMissingRule(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AcquireLock(context.Background(), 9999, testActor, defaultTestTTL, false)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListLocks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := createTestRule(t, store, "held-one")
	second := createTestRule(t, store, "held-two")
	lapsed := createTestRule(t, store, "held-lapsed")

	if _, err := store.AcquireLock(ctx, first.ID, testActor, defaultTestTTL, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	bob := types.Actor{UserID: "bob", Group: "BG2"}
	if _, err := store.AcquireLock(ctx, second.ID, bob, defaultTestTTL, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if _, err := store.AcquireLock(ctx, lapsed.ID, testActor, time.Nanosecond, false); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	locks, err := store.ListLocks(ctx)
	if err != nil {
		t.Fatalf("ListLocks failed: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("expected 2 live locks, got %d", len(locks))
	}
	holders := map[int64]string{}
	for _, l := range locks {
		holders[l.RuleID] = l.LockedBy
	}
	if holders[first.ID] != "alice" || holders[second.ID] != "bob" {
		t.Errorf("unexpected holders: %v", holders)
	}
	if _, ok := holders[lapsed.ID]; ok {
		t.Errorf("expired lock should not be listed")
	}
}
