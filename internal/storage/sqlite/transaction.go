package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// Verify txStore implements storage.Tx at compile time
var _ storage.Tx = (*txStore)(nil)

// txStore implements the storage.Tx interface. It wraps a dedicated database
// connection with an active transaction; all helpers run on that connection
// so reads observe earlier writes in the same transaction.
type txStore struct {
	conn *sql.Conn
}

// RunInTransaction executes fn within a database transaction.
//
// The transaction uses BEGIN IMMEDIATE to acquire the write lock early,
// preventing deadlocks when multiple goroutines compete for it. On error or
// panic the transaction is rolled back; the panic is re-raised.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even if ctx is cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&txStore{conn: conn}); err != nil {
		return err // Rollback happens in defer
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// GetRule retrieves a rule within the transaction, observing earlier writes.
func (t *txStore) GetRule(ctx context.Context, id int64) (*types.Rule, error) {
	return getRule(ctx, t.conn, id)
}

// UpdateRuleFields updates a rule within the transaction.
func (t *txStore) UpdateRuleFields(ctx context.Context, id int64, updates map[string]interface{}, action types.AuditAction, actor types.Actor) (*types.Rule, error) {
	return updateRuleFields(ctx, t.conn, id, updates, action, actor)
}

// DeleteRule deletes a rule and its dependent rows within the transaction.
func (t *txStore) DeleteRule(ctx context.Context, id int64, actor types.Actor) error {
	return deleteRule(ctx, t.conn, id, actor)
}

// ReplaceTableDeps swaps the analyzed table dependencies of a rule.
func (t *txStore) ReplaceTableDeps(ctx context.Context, ruleID int64, deps []types.TableDependency) error {
	if err := replaceTableDeps(ctx, t.conn, ruleID, deps); err != nil {
		return wrapDBError("replace table dependencies", err)
	}
	return nil
}

// ListApprovals returns the approval rows for (rule, action) in stage order.
func (t *txStore) ListApprovals(ctx context.Context, ruleID int64, action types.ActionType) ([]*types.Approval, error) {
	return listApprovals(ctx, t.conn, ruleID, action)
}

// SetApprovalFlag flips one pending approval row and records the verdict.
func (t *txStore) SetApprovalFlag(ctx context.Context, ruleID int64, action types.ActionType, group, username string, flag types.ApprovedFlag, actor types.Actor) error {
	return setApprovalFlag(ctx, t.conn, ruleID, action, group, username, flag, actor)
}

// MinPendingStage returns the lowest stage with a pending row, or ok=false
// when the pipeline is fully decided.
func (t *txStore) MinPendingStage(ctx context.Context, ruleID int64, action types.ActionType) (int, bool, error) {
	return minPendingStage(ctx, t.conn, ruleID, action)
}
