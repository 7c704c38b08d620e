package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

func scanLock(row rowScanner) (*types.Lock, error) {
	var l types.Lock
	var force, active int
	if err := row.Scan(&l.RuleID, &l.LockedBy, &l.LockedAt, &l.ExpiresAt, &force, &active); err != nil {
		return nil, err
	}
	l.Force = force != 0
	l.Active = active != 0
	return &l, nil
}

func activeLock(ctx context.Context, q querier, ruleID int64) (*types.Lock, error) {
	row := q.QueryRowContext(ctx, `
		SELECT RULE_ID, LOCKED_BY, LOCK_TIMESTAMP, EXPIRY_TIMESTAMP, FORCE_LOCK, ACTIVE_LOCK
		FROM BRM_RULE_LOCKS
		WHERE RULE_ID = ? AND ACTIVE_LOCK = 1
		ORDER BY LOCK_TIMESTAMP DESC
		LIMIT 1
	`, ruleID)
	lock, err := scanLock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("query active lock", err)
	}
	return lock, nil
}

func deactivateLocks(ctx context.Context, q querier, ruleID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE BRM_RULE_LOCKS SET ACTIVE_LOCK = 0 WHERE RULE_ID = ? AND ACTIVE_LOCK = 1`, ruleID)
	return err
}

// AcquireLock claims the edit lock on a rule.
//
// The check-and-insert runs in one IMMEDIATE transaction, so two concurrent
// claims serialize and exactly one wins. An expired lock counts as absent and
// is deactivated in passing. force steals a live lock (the caller enforces
// who may force); re-acquiring one's own live lock extends it.
func (s *Store) AcquireLock(ctx context.Context, ruleID int64, actor types.Actor, ttl time.Duration, force bool) (*types.Lock, error) {
	if actor.IsZero() {
		return nil, storage.ErrNoActor
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}

	var lock *types.Lock
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if _, err := getRule(ctx, conn, ruleID); err != nil {
			return err
		}

		now := time.Now()
		current, err := activeLock(ctx, conn, ruleID)
		if err != nil {
			return err
		}
		if current != nil {
			switch {
			case current.Expired(now), force, current.LockedBy == actor.UserID:
				if err := deactivateLocks(ctx, conn, ruleID); err != nil {
					return wrapDBError("deactivate stale lock", err)
				}
			default:
				return &storage.LockHeldError{RuleID: ruleID, Holder: current.LockedBy, ExpiresAt: current.ExpiresAt}
			}
		}

		lock = &types.Lock{
			RuleID:    ruleID,
			LockedBy:  actor.UserID,
			LockedAt:  now,
			ExpiresAt: now.Add(ttl),
			Force:     force,
			Active:    true,
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO BRM_RULE_LOCKS (RULE_ID, LOCKED_BY, LOCK_TIMESTAMP, EXPIRY_TIMESTAMP, FORCE_LOCK, ACTIVE_LOCK)
			VALUES (?, ?, ?, ?, ?, 1)
		`, ruleID, actor.UserID, lock.LockedAt, lock.ExpiresAt, boolToInt(force)); err != nil {
			return wrapDBError("insert lock", err)
		}
		return appendAudit(ctx, conn, types.AuditUpdate, types.TableLocks, ruleID, actor.UserID, "", snapshotJSON(lock))
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// ReleaseLock releases the active lock on a rule. Only the holder or an
// Admin actor may release; releasing an unheld lock is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, ruleID int64, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		current, err := activeLock(ctx, conn, ruleID)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		if current.LockedBy != actor.UserID && !actor.IsAdmin() && !current.Expired(time.Now()) {
			return &storage.LockHeldError{RuleID: ruleID, Holder: current.LockedBy, ExpiresAt: current.ExpiresAt}
		}
		if err := deactivateLocks(ctx, conn, ruleID); err != nil {
			return wrapDBError("release lock", err)
		}
		return appendAudit(ctx, conn, types.AuditUpdate, types.TableLocks, ruleID, actor.UserID, snapshotJSON(current), "")
	})
}

// ListLocks returns every live lock, oldest first. Expired rows are
// deactivated in passing rather than returned.
func (s *Store) ListLocks(ctx context.Context) ([]*types.Lock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT RULE_ID, LOCKED_BY, LOCK_TIMESTAMP, EXPIRY_TIMESTAMP, FORCE_LOCK, ACTIVE_LOCK
		FROM BRM_RULE_LOCKS
		WHERE ACTIVE_LOCK = 1
		ORDER BY LOCK_TIMESTAMP ASC
	`)
	if err != nil {
		return nil, wrapDBError("list locks", err)
	}
	defer rows.Close()

	now := time.Now()
	var live []*types.Lock
	var expired []int64
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, wrapDBError("scan lock", err)
		}
		if lock.Expired(now) {
			expired = append(expired, lock.RuleID)
			continue
		}
		live = append(live, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list locks", err)
	}

	for _, ruleID := range expired {
		_ = deactivateLocks(ctx, s.db, ruleID)
	}
	return live, nil
}

// LockOwner returns the live lock on a rule, or nil when the rule is
// unlocked. Expired locks are lazily deactivated.
func (s *Store) LockOwner(ctx context.Context, ruleID int64) (*types.Lock, error) {
	current, err := activeLock(ctx, s.db, ruleID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	if current.Expired(time.Now()) {
		_ = deactivateLocks(ctx, s.db, ruleID)
		return nil, nil
	}
	return current, nil
}
