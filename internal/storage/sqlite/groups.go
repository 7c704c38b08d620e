package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// SeedGroups upserts business groups and their approver rosters. Used by
// init to lay down the default approval hierarchy; idempotent so re-running
// init is safe.
func (s *Store) SeedGroups(ctx context.Context, groups []types.Group, approvers map[string][]string) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		for _, g := range groups {
			if g.Name == "" {
				return fmt.Errorf("group name is required")
			}
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO BUSINESS_GROUPS (GROUP_NAME, DESCRIPTION, EMAIL) VALUES (?, ?, ?)
				ON CONFLICT(GROUP_NAME) DO UPDATE SET DESCRIPTION = excluded.DESCRIPTION, EMAIL = excluded.EMAIL
			`, g.Name, nullableString(g.Description), nullableString(g.Email)); err != nil {
				return wrapDBError("upsert group", err)
			}
		}
		for group, users := range approvers {
			for _, user := range users {
				if _, err := conn.ExecContext(ctx, `
					INSERT OR IGNORE INTO BRM_GROUP_APPROVERS (GROUP_NAME, USERNAME) VALUES (?, ?)
				`, group, user); err != nil {
					return wrapDBError("insert group approver", err)
				}
			}
		}
		return nil
	})
}

// ListGroups returns every business group in name order.
func (s *Store) ListGroups(ctx context.Context) ([]*types.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT GROUP_NAME, DESCRIPTION, EMAIL FROM BUSINESS_GROUPS ORDER BY GROUP_NAME`)
	if err != nil {
		return nil, wrapDBError("list groups", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []*types.Group
	for rows.Next() {
		var g types.Group
		var desc, email sql.NullString
		if err := rows.Scan(&g.Name, &desc, &email); err != nil {
			return nil, wrapDBError("scan group", err)
		}
		g.Description = desc.String
		g.Email = email.String
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

// GetGroup retrieves a business group by name.
func (s *Store) GetGroup(ctx context.Context, name string) (*types.Group, error) {
	var g types.Group
	var desc, email sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT GROUP_NAME, DESCRIPTION, EMAIL FROM BUSINESS_GROUPS WHERE GROUP_NAME = ?`, name).
		Scan(&g.Name, &desc, &email)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get group %s", name), err)
	}
	g.Description = desc.String
	g.Email = email.String
	return &g, nil
}

// GroupApprovers returns the usernames registered as approvers for a group.
func (s *Store) GroupApprovers(ctx context.Context, group string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT USERNAME FROM BRM_GROUP_APPROVERS WHERE GROUP_NAME = ? ORDER BY USERNAME`, group)
	if err != nil {
		return nil, wrapDBError("list group approvers", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, wrapDBError("scan approver", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// AddGroupApprover registers a user as an approver for a group.
func (s *Store) AddGroupApprover(ctx context.Context, group, username string, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if group == "" || username == "" {
		return fmt.Errorf("group and username are required")
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if _, err := s.groupExists(ctx, conn, group); err != nil {
			return err
		}
		res, err := conn.ExecContext(ctx,
			`INSERT OR IGNORE INTO BRM_GROUP_APPROVERS (GROUP_NAME, USERNAME) VALUES (?, ?)`, group, username)
		if err != nil {
			return wrapDBError("insert group approver", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 0 {
			// Already registered.
			return nil
		}
		entry := snapshotJSON(map[string]string{"group_name": group, "username": username})
		return appendAudit(ctx, conn, types.AuditInsert, types.TableGroupApprovers, 0, actor.UserID, "", entry)
	})
}

// RemoveGroupApprover removes a user from a group's approver roster.
func (s *Store) RemoveGroupApprover(ctx context.Context, group, username string, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`DELETE FROM BRM_GROUP_APPROVERS WHERE GROUP_NAME = ? AND USERNAME = ?`, group, username)
		if err != nil {
			return wrapDBError("delete group approver", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("approver %s in group %s: %w", username, group, storage.ErrNotFound)
		}
		entry := snapshotJSON(map[string]string{"group_name": group, "username": username})
		return appendAudit(ctx, conn, types.AuditDelete, types.TableGroupApprovers, 0, actor.UserID, entry, "")
	})
}

func (s *Store) groupExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM BUSINESS_GROUPS WHERE GROUP_NAME = ?`, name).Scan(&n); err != nil {
		return false, wrapDBError("check group", err)
	}
	if n == 0 {
		return false, fmt.Errorf("group %s: %w", name, storage.ErrNotFound)
	}
	return true, nil
}

// CreateDecisionTable registers a decision-table reference. The generated ID
// is written back into dt.ID.
func (s *Store) CreateDecisionTable(ctx context.Context, dt *types.DecisionTable, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if dt.TableName == "" {
		return fmt.Errorf("decision table name is required")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO BRM_DECISION_TABLES (TABLE_NAME, DESCRIPTION) VALUES (?, ?)
	`, dt.TableName, nullableString(dt.Description))
	if err != nil {
		return wrapDBError("insert decision table", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read generated decision table ID: %w", err)
	}
	dt.ID = id
	return nil
}

// GetDecisionTable retrieves a decision-table reference by ID.
func (s *Store) GetDecisionTable(ctx context.Context, id int64) (*types.DecisionTable, error) {
	var dt types.DecisionTable
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT DECISION_TABLE_ID, TABLE_NAME, DESCRIPTION FROM BRM_DECISION_TABLES WHERE DECISION_TABLE_ID = ?`, id).
		Scan(&dt.ID, &dt.TableName, &desc)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get decision table %d", id), err)
	}
	dt.Description = desc.String
	return &dt, nil
}

// ListDecisionTables returns every decision-table reference in name order.
func (s *Store) ListDecisionTables(ctx context.Context) ([]*types.DecisionTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DECISION_TABLE_ID, TABLE_NAME, DESCRIPTION FROM BRM_DECISION_TABLES ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, wrapDBError("list decision tables", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []*types.DecisionTable
	for rows.Next() {
		var dt types.DecisionTable
		var desc sql.NullString
		if err := rows.Scan(&dt.ID, &dt.TableName, &desc); err != nil {
			return nil, wrapDBError("scan decision table", err)
		}
		dt.Description = desc.String
		tables = append(tables, &dt)
	}
	return tables, rows.Err()
}
