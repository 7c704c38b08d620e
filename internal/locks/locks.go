// Package locks guards rule mutations with pessimistic, TTL-bound locks.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// DefaultTTL bounds how long a lock lives when the caller does not say.
const DefaultTTL = 30 * time.Minute

// ErrAdminOnly is returned when a non-admin attempts a force acquisition.
var ErrAdminOnly = errors.New("force lock requires Admin")

// NotHeldError reports a lifecycle mutation attempted without the lock.
type NotHeldError struct {
	RuleID    int64
	Holder    string // empty when nobody holds the lock
	ExpiresAt time.Time
}

func (e *NotHeldError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("rule %d is not locked; acquire the lock first", e.RuleID)
	}
	return fmt.Sprintf("rule %d is locked by %s until %s", e.RuleID, e.Holder, e.ExpiresAt.Format(time.RFC3339))
}

// Manager wraps the store's lock operations with TTL defaulting and the
// admin gate on force acquisition.
type Manager struct {
	store storage.Store
	ttl   time.Duration
}

// NewManager returns a Manager using defaultTTL for acquisitions that pass
// zero. A non-positive defaultTTL falls back to DefaultTTL.
func NewManager(store storage.Store, defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Manager{store: store, ttl: defaultTTL}
}

// Acquire claims the rule for actor. A zero ttl uses the manager default.
// When another user holds a live lock the error is *storage.LockHeldError.
func (m *Manager) Acquire(ctx context.Context, ruleID int64, actor types.Actor, ttl time.Duration) (*types.Lock, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.store.AcquireLock(ctx, ruleID, actor, ttl, false)
}

// ForceAcquire deactivates any existing lock and claims the rule. Admin only.
func (m *Manager) ForceAcquire(ctx context.Context, ruleID int64, actor types.Actor, ttl time.Duration) (*types.Lock, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.store.AcquireLock(ctx, ruleID, actor, ttl, true)
}

// Release deactivates the current lock when actor owns it or is Admin.
func (m *Manager) Release(ctx context.Context, ruleID int64, actor types.Actor) error {
	return m.store.ReleaseLock(ctx, ruleID, actor)
}

// Owner returns the live lock on the rule, or nil when unlocked or expired.
func (m *Manager) Owner(ctx context.Context, ruleID int64) (*types.Lock, error) {
	return m.store.LockOwner(ctx, ruleID)
}

// Require enforces the mutation gate: the actor must hold a live lock on the
// rule unless they are Admin. Returns *NotHeldError when the gate fails.
func (m *Manager) Require(ctx context.Context, ruleID int64, actor types.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	lock, err := m.store.LockOwner(ctx, ruleID)
	if err != nil {
		return err
	}
	if lock == nil {
		return &NotHeldError{RuleID: ruleID}
	}
	if lock.LockedBy != actor.UserID {
		return &NotHeldError{RuleID: ruleID, Holder: lock.LockedBy, ExpiresAt: lock.ExpiresAt}
	}
	return nil
}
