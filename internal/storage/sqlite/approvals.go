package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// ReplacePipeline atomically swaps the approval rows for (rule, action).
// Opening a fresh pipeline for a new version discards any stale rows from
// the previous one.
func (s *Store) ReplacePipeline(ctx context.Context, ruleID int64, action types.ActionType, approvals []types.Approval, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if !action.IsValid() {
		return fmt.Errorf("invalid action type: %s", action)
	}

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if _, err := getRule(ctx, conn, ruleID); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM BRM_RULE_APPROVALS WHERE RULE_ID = ? AND ACTION_TYPE = ?`,
			ruleID, string(action)); err != nil {
			return wrapDBError("clear approval pipeline", err)
		}
		for _, a := range approvals {
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO BRM_RULE_APPROVALS (RULE_ID, GROUP_NAME, USERNAME, APPROVED_FLAG, APPROVAL_STAGE, ACTION_TYPE, APPROVED_AT)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, ruleID, a.GroupName, a.Username, int(a.ApprovedFlag), a.Stage, string(action), nullableTime(a.ApprovedAt)); err != nil {
				return wrapDBError("insert approval row", err)
			}
		}
		return nil
	})
}

func listApprovals(ctx context.Context, q querier, ruleID int64, action types.ActionType) ([]*types.Approval, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT RULE_ID, GROUP_NAME, USERNAME, APPROVED_FLAG, APPROVAL_STAGE, ACTION_TYPE, APPROVED_AT
		FROM BRM_RULE_APPROVALS
		WHERE RULE_ID = ? AND ACTION_TYPE = ?
		ORDER BY APPROVAL_STAGE, GROUP_NAME, USERNAME
	`, ruleID, string(action))
	if err != nil {
		return nil, wrapDBError("list approvals", err)
	}
	defer func() { _ = rows.Close() }()

	var approvals []*types.Approval
	for rows.Next() {
		var a types.Approval
		var flag int
		var approvedAt sql.NullTime
		if err := rows.Scan(&a.RuleID, &a.GroupName, &a.Username, &flag, &a.Stage, &a.ActionType, &approvedAt); err != nil {
			return nil, wrapDBError("scan approval", err)
		}
		a.ApprovedFlag = types.ApprovedFlag(flag)
		if approvedAt.Valid {
			t := approvedAt.Time
			a.ApprovedAt = &t
		}
		approvals = append(approvals, &a)
	}
	return approvals, rows.Err()
}

// ListApprovals returns the approval rows for (rule, action) in stage order.
func (s *Store) ListApprovals(ctx context.Context, ruleID int64, action types.ActionType) ([]*types.Approval, error) {
	return listApprovals(ctx, s.db, ruleID, action)
}

// setApprovalFlag flips exactly one PENDING row and records the verdict in
// the audit log. Rows already decided are not eligible; asking again returns
// ErrNotFound.
func setApprovalFlag(ctx context.Context, q querier, ruleID int64, action types.ActionType, group, username string, flag types.ApprovedFlag, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if flag != types.FlagApproved && flag != types.FlagRejected {
		return fmt.Errorf("approval flag must be approved or rejected, got %d", int(flag))
	}

	var stage int
	err := q.QueryRowContext(ctx, `
		SELECT APPROVAL_STAGE FROM BRM_RULE_APPROVALS
		WHERE RULE_ID = ? AND ACTION_TYPE = ? AND GROUP_NAME = ? AND USERNAME = ? AND APPROVED_FLAG = 0
	`, ruleID, string(action), group, username).Scan(&stage)
	if err != nil {
		return wrapDBError(fmt.Sprintf("pending approval for %s in %s", username, group), err)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE BRM_RULE_APPROVALS SET APPROVED_FLAG = ?, APPROVED_AT = ?
		WHERE RULE_ID = ? AND ACTION_TYPE = ? AND GROUP_NAME = ? AND USERNAME = ? AND APPROVED_FLAG = 0
	`, int(flag), time.Now(), ruleID, string(action), group, username)
	if err != nil {
		return wrapDBError("set approval flag", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pending approval for %s in %s: %w", username, group, storage.ErrNotFound)
	}

	auditAction := types.AuditApprove
	if flag == types.FlagRejected {
		auditAction = types.AuditReject
	}
	verdict := snapshotJSON(map[string]interface{}{
		"action_type": action,
		"group_name":  group,
		"username":    username,
		"stage":       stage,
		"flag":        int(flag),
	})
	if err := appendAudit(ctx, q, auditAction, types.TableApprovals, ruleID, actor.UserID, "", verdict); err != nil {
		return wrapDBError("record audit entry", err)
	}
	return nil
}

// minPendingStage returns the lowest stage still holding a PENDING row, or
// ok=false when every row is decided.
func minPendingStage(ctx context.Context, q querier, ruleID int64, action types.ActionType) (int, bool, error) {
	var stage sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MIN(APPROVAL_STAGE) FROM BRM_RULE_APPROVALS
		WHERE RULE_ID = ? AND ACTION_TYPE = ? AND APPROVED_FLAG = 0
	`, ruleID, string(action)).Scan(&stage)
	if err != nil {
		return 0, false, wrapDBError("query pending stages", err)
	}
	if !stage.Valid {
		return 0, false, nil
	}
	return int(stage.Int64), true, nil
}
