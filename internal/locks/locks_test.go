package locks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/storage/sqlite"
	"github.com/brmkit/brm/internal/types"
)

var (
	alice = types.Actor{UserID: "alice", Group: "BG1"}
	bob   = types.Actor{UserID: "bob", Group: "BG2"}
	admin = types.Actor{UserID: "root", Group: "Admin"}
)

func newTestManager(t *testing.T) (*Manager, storage.Store, int64) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rule := &types.Rule{Name: "locked-rule", OwnerGroup: "BG1", SQL: "SELECT 1"}
	if err := store.CreateRule(ctx, rule, nil, alice); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return NewManager(store, 0), store, rule.ID
}

func TestAcquireUsesDefaultTTL(t *testing.T) {
	m, _, ruleID := newTestManager(t)
	before := time.Now()
	lock, err := m.Acquire(context.Background(), ruleID, alice, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	min := before.Add(DefaultTTL - time.Minute)
	if lock.ExpiresAt.Before(min) {
		t.Errorf("expiry %v too early for default TTL", lock.ExpiresAt)
	}
}

func TestRequireGate(t *testing.T) {
	m, _, ruleID := newTestManager(t)
	ctx := context.Background()

	// Unlocked: gate fails for a regular user.
	err := m.Require(ctx, ruleID, alice)
	var notHeld *NotHeldError
	if !errors.As(err, &notHeld) || notHeld.Holder != "" {
		t.Fatalf("Require on unlocked rule = %v, want NotHeldError without holder", err)
	}

	if _, err := m.Acquire(ctx, ruleID, alice, time.Hour); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := m.Require(ctx, ruleID, alice); err != nil {
		t.Errorf("Require for holder = %v, want nil", err)
	}

	err = m.Require(ctx, ruleID, bob)
	if !errors.As(err, &notHeld) || notHeld.Holder != "alice" {
		t.Errorf("Require for non-holder = %v, want NotHeldError naming alice", err)
	}

	// Admin bypasses the gate entirely.
	if err := m.Require(ctx, ruleID, admin); err != nil {
		t.Errorf("Require for admin = %v, want nil", err)
	}
}

func TestForceAcquireAdminOnly(t *testing.T) {
	m, _, ruleID := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, ruleID, alice, time.Hour); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := m.ForceAcquire(ctx, ruleID, bob, time.Hour); !errors.Is(err, ErrAdminOnly) {
		t.Errorf("non-admin force = %v, want ErrAdminOnly", err)
	}

	lock, err := m.ForceAcquire(ctx, ruleID, admin, time.Hour)
	if err != nil {
		t.Fatalf("admin force: %v", err)
	}
	if lock.LockedBy != "root" || !lock.Force {
		t.Errorf("forced lock = %+v, want root holder with force flag", lock)
	}
}

func TestAcquireHeldReportsHolder(t *testing.T) {
	m, _, ruleID := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, ruleID, alice, time.Hour); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err := m.Acquire(ctx, ruleID, bob, time.Hour)
	var held *storage.LockHeldError
	if !errors.As(err, &held) || held.Holder != "alice" {
		t.Errorf("second acquire = %v, want LockHeldError naming alice", err)
	}
}

func TestReleaseThenRequireFails(t *testing.T) {
	m, _, ruleID := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, ruleID, alice, time.Hour); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := m.Release(ctx, ruleID, alice); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := m.Require(ctx, ruleID, alice); err == nil {
		t.Error("Require after release should fail")
	}
	owner, err := m.Owner(ctx, ruleID)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != nil {
		t.Errorf("owner after release = %+v, want nil", owner)
	}
}
