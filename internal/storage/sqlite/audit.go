package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/brmkit/brm/internal/types"
)

// appendAudit inserts one audit row. Mutating operations call it on the same
// connection as the mutation so both commit or neither does.
func appendAudit(ctx context.Context, q querier, action types.AuditAction, table string, recordID int64, actionBy, oldData, newData string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO BRM_AUDIT_LOG (ACTION, TABLE_NAME, RECORD_ID, ACTION_BY, OLD_DATA, NEW_DATA, ACTION_TIMESTAMP)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(action), table, recordID, actionBy, nullableString(oldData), nullableString(newData), time.Now())
	return err
}

// ListAudit returns audit entries matching the filter, newest first.
func (s *Store) ListAudit(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	var conds []string
	var args []interface{}

	if filter.Actor != "" {
		conds = append(conds, "ACTION_BY = ?")
		args = append(args, filter.Actor)
	}
	if filter.Action != "" {
		conds = append(conds, "ACTION = ?")
		args = append(args, string(filter.Action))
	}
	if filter.TableName != "" {
		conds = append(conds, "TABLE_NAME = ?")
		args = append(args, filter.TableName)
	}
	if filter.RecordID != nil {
		conds = append(conds, "RECORD_ID = ?")
		args = append(args, *filter.RecordID)
	}
	if filter.Since != nil {
		conds = append(conds, "ACTION_TIMESTAMP >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		conds = append(conds, "ACTION_TIMESTAMP <= ?")
		args = append(args, *filter.Until)
	}

	query := `SELECT AUDIT_ID, ACTION, TABLE_NAME, RECORD_ID, ACTION_BY, OLD_DATA, NEW_DATA, ACTION_TIMESTAMP FROM BRM_AUDIT_LOG`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY AUDIT_ID DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list audit entries", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var oldData, newData sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.TableName, &e.RecordID, &e.Actor, &oldData, &newData, &e.Timestamp); err != nil {
			return nil, wrapDBError("scan audit entry", err)
		}
		e.OldData = oldData.String
		e.NewData = newData.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
