package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// allowedUpdateFields maps update keys to their BRM_RULES columns. Anything
// not listed here is rejected, which keeps UpdateRuleFields safe against SQL
// injection through field names. VERSION, LIFECYCLE_STATE and the UPDATED_*
// columns are managed by the store and are deliberately absent.
var allowedUpdateFields = map[string]string{
	"rule_name":            "RULE_NAME",
	"rule_sql":             "RULE_SQL",
	"rule_type":            "RULE_TYPE",
	"owner_group":          "OWNER_GROUP",
	"parent_rule_id":       "PARENT_RULE_ID",
	"group_id":             "GROUP_ID",
	"effective_start_date": "EFFECTIVE_START_DATE",
	"effective_end_date":   "EFFECTIVE_END_DATE",
	"operation_type":       "OPERATION_TYPE",
	"is_global":            "IS_GLOBAL",
	"critical_rule":        "CRITICAL_RULE",
	"critical_scope":       "CRITICAL_SCOPE",
	"cdc_type":             "CDC_TYPE",
	"status":               "STATUS",
	"approval_status":      "APPROVAL_STATUS",
	"decision_table_id":    "DECISION_TABLE_ID",
}

// validateFieldUpdate checks enum-typed update values before they reach SQL.
func validateFieldUpdate(key string, value interface{}) error {
	switch key {
	case "rule_name":
		name, _ := value.(string)
		if name == "" {
			return fmt.Errorf("rule name cannot be empty")
		}
		if len(name) > 200 {
			return fmt.Errorf("rule name must be 200 characters or less (got %d)", len(name))
		}
	case "status":
		if !asRuleStatus(value).IsValid() {
			return fmt.Errorf("invalid status: %v", value)
		}
	case "approval_status":
		if !asApprovalStatus(value).IsValid() {
			return fmt.Errorf("invalid approval status: %v", value)
		}
	case "critical_scope":
		if s, ok := stringValue(value); !ok || !types.CriticalScope(s).IsValid() {
			return fmt.Errorf("invalid critical scope: %v", value)
		}
	case "operation_type":
		if s, ok := stringValue(value); !ok || (s != "" && !types.OperationKind(s).IsValid()) {
			return fmt.Errorf("invalid operation type: %v", value)
		}
	}
	return nil
}

func stringValue(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case types.RuleStatus:
		return string(x), true
	case types.ApprovalStatus:
		return string(x), true
	case types.CriticalScope:
		return string(x), true
	case types.OperationKind:
		return string(x), true
	}
	return "", false
}

func asRuleStatus(v interface{}) types.RuleStatus {
	if s, ok := v.(types.RuleStatus); ok {
		return s
	}
	if s, ok := v.(string); ok {
		return types.RuleStatus(s)
	}
	return ""
}

func asApprovalStatus(v interface{}) types.ApprovalStatus {
	if s, ok := v.(types.ApprovalStatus); ok {
		return s
	}
	if s, ok := v.(string); ok {
		return types.ApprovalStatus(s)
	}
	return ""
}

// snapshotJSON marshals an entity for an audit column. Marshal failures
// degrade to an empty object rather than losing the audit row.
func snapshotJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ruleColumns is the canonical SELECT list; scanRule must match its order.
const ruleColumns = `RULE_ID, RULE_NAME, RULE_SQL, RULE_TYPE, OWNER_GROUP, PARENT_RULE_ID, GROUP_ID,
	EFFECTIVE_START_DATE, EFFECTIVE_END_DATE, OPERATION_TYPE, IS_GLOBAL, CRITICAL_RULE, CRITICAL_SCOPE,
	CDC_TYPE, STATUS, APPROVAL_STATUS, LIFECYCLE_STATE, VERSION, DECISION_TABLE_ID,
	CREATED_BY, CREATED_TIMESTAMP, UPDATED_BY, UPDATED_TIMESTAMP`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*types.Rule, error) {
	var r types.Rule
	var ruleSQL, ruleType, opKind, cdcType, lifecycle, createdBy, updatedBy sql.NullString
	var parentID, groupID, decisionTableID sql.NullInt64
	var effStart, effEnd sql.NullTime
	var isGlobal, critical int

	err := row.Scan(
		&r.ID, &r.Name, &ruleSQL, &ruleType, &r.OwnerGroup, &parentID, &groupID,
		&effStart, &effEnd, &opKind, &isGlobal, &critical, &r.CriticalScope,
		&cdcType, &r.Status, &r.ApprovalStatus, &lifecycle, &r.Version, &decisionTableID,
		&createdBy, &r.CreatedAt, &updatedBy, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.SQL = ruleSQL.String
	r.RuleType = ruleType.String
	r.OperationKind = types.OperationKind(opKind.String)
	r.IsGlobal = isGlobal != 0
	r.CriticalRule = critical != 0
	r.CDCType = cdcType.String
	r.LifecycleState = lifecycle.String
	r.CreatedBy = createdBy.String
	r.UpdatedBy = updatedBy.String
	if parentID.Valid {
		r.ParentRuleID = &parentID.Int64
	}
	if groupID.Valid {
		r.GroupID = &groupID.Int64
	}
	if decisionTableID.Valid {
		r.DecisionTableID = &decisionTableID.Int64
	}
	if effStart.Valid {
		t := effStart.Time
		r.EffectiveStart = &t
	}
	if effEnd.Valid {
		t := effEnd.Time
		r.EffectiveEnd = &t
	}
	return &r, nil
}

func getRule(ctx context.Context, q querier, id int64) (*types.Rule, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM BRM_RULES WHERE RULE_ID = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get rule %d", id), err)
	}
	return rule, nil
}

func insertRule(ctx context.Context, q querier, rule *types.Rule) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO BRM_RULES (
			RULE_NAME, RULE_SQL, RULE_TYPE, OWNER_GROUP, PARENT_RULE_ID, GROUP_ID,
			EFFECTIVE_START_DATE, EFFECTIVE_END_DATE, OPERATION_TYPE, IS_GLOBAL, CRITICAL_RULE,
			CRITICAL_SCOPE, CDC_TYPE, STATUS, APPROVAL_STATUS, LIFECYCLE_STATE, VERSION,
			DECISION_TABLE_ID, CREATED_BY, CREATED_TIMESTAMP, UPDATED_BY, UPDATED_TIMESTAMP
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.Name, nullableString(rule.SQL), nullableString(rule.RuleType), rule.OwnerGroup,
		nullableInt64(rule.ParentRuleID), nullableInt64(rule.GroupID),
		nullableTime(rule.EffectiveStart), nullableTime(rule.EffectiveEnd),
		nullableString(string(rule.OperationKind)), boolToInt(rule.IsGlobal), boolToInt(rule.CriticalRule),
		string(rule.CriticalScope), nullableString(rule.CDCType), string(rule.Status),
		string(rule.ApprovalStatus), nullableString(rule.LifecycleState), rule.Version,
		nullableInt64(rule.DecisionTableID), nullableString(rule.CreatedBy), rule.CreatedAt,
		nullableString(rule.UpdatedBy), rule.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read generated rule ID: %w", err)
	}
	rule.ID = id
	return nil
}

func insertTableDeps(ctx context.Context, q querier, ruleID int64, deps []types.TableDependency) error {
	for _, d := range deps {
		op := d.Op
		if op == "" {
			op = types.ColumnRead
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO BRM_RULE_TABLE_DEPENDENCIES (RULE_ID, DATABASE_NAME, TABLE_NAME, COLUMN_NAME, COLUMN_OP)
			VALUES (?, ?, ?, ?, ?)
		`, ruleID, nullableString(d.Database), d.Table, nullableString(d.Column), string(op)); err != nil {
			return err
		}
	}
	return nil
}

func replaceTableDeps(ctx context.Context, q querier, ruleID int64, deps []types.TableDependency) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM BRM_RULE_TABLE_DEPENDENCIES WHERE RULE_ID = ?`, ruleID); err != nil {
		return err
	}
	return insertTableDeps(ctx, q, ruleID, deps)
}

// CreateRule inserts a rule plus its analyzed table dependencies and the
// creation audit entry in one transaction. The generated ID is written back
// into rule.ID.
func (s *Store) CreateRule(ctx context.Context, rule *types.Rule, deps []types.TableDependency, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}

	rule.SetDefaults()
	rule.LifecycleState = types.DeriveLifecycleState(rule.Status, rule.ApprovalStatus)
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.CreatedBy = actor.UserID
	rule.UpdatedBy = actor.UserID

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		// Proactive duplicate check gives a cleaner error than the UNIQUE
		// constraint, which still backstops races.
		var n int
		err := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM BRM_RULES WHERE OWNER_GROUP = ? AND RULE_NAME = ?`,
			rule.OwnerGroup, rule.Name).Scan(&n)
		if err != nil {
			return wrapDBError("check rule name", err)
		}
		if n > 0 {
			return fmt.Errorf("rule %q in group %q: %w", rule.Name, rule.OwnerGroup, storage.ErrDuplicateName)
		}

		if rule.ParentRuleID != nil {
			if _, err := getRule(ctx, conn, *rule.ParentRuleID); err != nil {
				return fmt.Errorf("parent rule %d: %w", *rule.ParentRuleID, err)
			}
		}

		if err := insertRule(ctx, conn, rule); err != nil {
			return wrapDBError("insert rule", err)
		}
		if err := insertTableDeps(ctx, conn, rule.ID, deps); err != nil {
			return wrapDBError("insert table dependencies", err)
		}
		if err := appendAudit(ctx, conn, types.AuditInsert, types.TableRules, rule.ID, actor.UserID, "", snapshotJSON(rule)); err != nil {
			return wrapDBError("record audit entry", err)
		}
		return nil
	})
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, id int64) (*types.Rule, error) {
	return getRule(ctx, s.db, id)
}

// GetRuleByName retrieves a rule by its (owner group, name) pair, which is
// unique across the rule table.
func (s *Store) GetRuleByName(ctx context.Context, ownerGroup, name string) (*types.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM BRM_RULES WHERE OWNER_GROUP = ? AND RULE_NAME = ?`,
		ownerGroup, name)
	rule, err := scanRule(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get rule %s/%s", ownerGroup, name), err)
	}
	return rule, nil
}

// ListRules returns rules matching the filter, ordered by ID.
func (s *Store) ListRules(ctx context.Context, filter types.RuleFilter) ([]*types.Rule, error) {
	var conds []string
	var args []interface{}

	if filter.OwnerGroup != "" {
		conds = append(conds, "OWNER_GROUP = ?")
		args = append(args, filter.OwnerGroup)
	}
	if filter.Status != nil {
		conds = append(conds, "STATUS = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ApprovalStatus != nil {
		conds = append(conds, "APPROVAL_STATUS = ?")
		args = append(args, string(*filter.ApprovalStatus))
	}
	if filter.IsGlobal != nil {
		conds = append(conds, "IS_GLOBAL = ?")
		args = append(args, boolToInt(*filter.IsGlobal))
	}
	if filter.CriticalOnly {
		conds = append(conds, "(CRITICAL_RULE = 1 OR IS_GLOBAL = 1) AND CRITICAL_SCOPE != 'NONE'")
	}
	if filter.ParentRuleID != nil {
		conds = append(conds, "PARENT_RULE_ID = ?")
		args = append(args, *filter.ParentRuleID)
	}
	if filter.NameContains != "" {
		conds = append(conds, "RULE_NAME LIKE ?")
		args = append(args, "%"+filter.NameContains+"%")
	}

	query := `SELECT ` + ruleColumns + ` FROM BRM_RULES`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY RULE_ID"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list rules", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []*types.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, wrapDBError("scan rule", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListChildren returns the direct children of a rule.
func (s *Store) ListChildren(ctx context.Context, parentID int64) ([]*types.Rule, error) {
	return s.ListRules(ctx, types.RuleFilter{ParentRuleID: &parentID})
}

// updateRuleFields is the shared implementation behind Store.UpdateRuleFields
// and Tx.UpdateRuleFields. It must run inside a transaction: it reads the old
// row, writes the update, rereads the new row and appends the audit entry.
func updateRuleFields(ctx context.Context, q querier, id int64, updates map[string]interface{}, action types.AuditAction, actor types.Actor) (*types.Rule, error) {
	if actor.IsZero() {
		return nil, storage.ErrNoActor
	}
	if action == "" {
		action = types.AuditUpdate
	}

	old, err := getRule(ctx, q, id)
	if err != nil {
		return nil, err
	}

	// Build update query with validated field names.
	setClauses := []string{"UPDATED_TIMESTAMP = ?", "UPDATED_BY = ?", "VERSION = VERSION + 1"}
	args := []interface{}{time.Now(), actor.UserID}

	for key, value := range updates {
		column, ok := allowedUpdateFields[key]
		if !ok {
			return nil, fmt.Errorf("invalid field for update: %s", key)
		}
		if err := validateFieldUpdate(key, value); err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", column))
		args = append(args, value)
	}

	// LIFECYCLE_STATE mirrors the two authoritative columns; recompute it
	// from the post-update values so the mirror never drifts.
	newStatus := old.Status
	if v, ok := updates["status"]; ok {
		newStatus = asRuleStatus(v)
	}
	newApproval := old.ApprovalStatus
	if v, ok := updates["approval_status"]; ok {
		newApproval = asApprovalStatus(v)
	}
	setClauses = append(setClauses, "LIFECYCLE_STATE = ?")
	args = append(args, types.DeriveLifecycleState(newStatus, newApproval))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE BRM_RULES SET %s WHERE RULE_ID = ?", strings.Join(setClauses, ", ")) // #nosec G201 - column names come from allowedUpdateFields
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, wrapDBError("update rule", err)
	}

	updated, err := getRule(ctx, q, id)
	if err != nil {
		return nil, err
	}

	if err := appendAudit(ctx, q, action, types.TableRules, id, actor.UserID, snapshotJSON(old), snapshotJSON(updated)); err != nil {
		return nil, wrapDBError("record audit entry", err)
	}
	return updated, nil
}

// UpdateRuleFields applies an allow-listed column map, bumps VERSION and
// refreshes the bookkeeping columns, all inside one transaction with the
// audit entry.
func (s *Store) UpdateRuleFields(ctx context.Context, id int64, updates map[string]interface{}, action types.AuditAction, actor types.Actor) (*types.Rule, error) {
	var updated *types.Rule
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		var err error
		updated, err = updateRuleFields(ctx, conn, id, updates, action, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// deleteRule removes the rule row and every row that references it, except
// history tables (audit, execution logs) which outlive the rule.
func deleteRule(ctx context.Context, q querier, id int64, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}

	old, err := getRule(ctx, q, id)
	if err != nil {
		return err
	}

	cleanup := []struct {
		desc  string
		query string
		args  []interface{}
	}{
		{"table dependencies", `DELETE FROM BRM_RULE_TABLE_DEPENDENCIES WHERE RULE_ID = ?`, []interface{}{id}},
		{"approvals", `DELETE FROM BRM_RULE_APPROVALS WHERE RULE_ID = ?`, []interface{}{id}},
		{"locks", `DELETE FROM BRM_RULE_LOCKS WHERE RULE_ID = ?`, []interface{}{id}},
		{"conflicts", `DELETE FROM BRM_RULE_CONFLICTS WHERE RULE_ID1 = ? OR RULE_ID2 = ?`, []interface{}{id, id}},
		{"composite expression", `DELETE FROM BRM_COMPOSITE_RULES WHERE RULE_ID = ?`, []interface{}{id}},
		{"global critical links", `DELETE FROM BRM_GLOBAL_CRITICAL_LINKS WHERE GCR_RULE_ID = ? OR TARGET_RULE_ID = ?`, []interface{}{id, id}},
		{"pending schedules", `DELETE FROM RULE_SCHEDULES WHERE RULE_ID = ? AND STATUS = 'Scheduled'`, []interface{}{id}},
	}
	for _, c := range cleanup {
		if _, err := q.ExecContext(ctx, c.query, c.args...); err != nil {
			return wrapDBError("delete "+c.desc, err)
		}
	}

	// Column mappings may be absent; callers guarantee availability was
	// checked, but a direct failure here should not mask the delete.
	_, _ = q.ExecContext(ctx, `DELETE FROM BRM_COLUMN_MAPPINGS WHERE RULE_ID = ? OR TARGET_RULE_ID = ?`, id, id)

	res, err := q.ExecContext(ctx, `DELETE FROM BRM_RULES WHERE RULE_ID = ?`, id)
	if err != nil {
		return wrapDBError("delete rule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %d: %w", id, storage.ErrNotFound)
	}

	if err := appendAudit(ctx, q, types.AuditDelete, types.TableRules, id, actor.UserID, snapshotJSON(old), ""); err != nil {
		return wrapDBError("record audit entry", err)
	}
	return nil
}

// DeleteRule physically removes the rule and its dependent rows, recording
// the old snapshot in the audit log. Guard conditions (children, references)
// are the lifecycle layer's responsibility.
func (s *Store) DeleteRule(ctx context.Context, id int64, actor types.Actor) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		return deleteRule(ctx, conn, id, actor)
	})
}

// GetTableDeps returns the analyzed table dependencies recorded for a rule.
func (s *Store) GetTableDeps(ctx context.Context, ruleID int64) ([]types.TableDependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT RULE_ID, DATABASE_NAME, TABLE_NAME, COLUMN_NAME, COLUMN_OP
		FROM BRM_RULE_TABLE_DEPENDENCIES
		WHERE RULE_ID = ?
		ORDER BY DEPENDENCY_ID
	`, ruleID)
	if err != nil {
		return nil, wrapDBError("get table dependencies", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []types.TableDependency
	for rows.Next() {
		var d types.TableDependency
		var db, col sql.NullString
		if err := rows.Scan(&d.RuleID, &db, &d.Table, &col, &d.Op); err != nil {
			return nil, wrapDBError("scan table dependency", err)
		}
		d.Database = db.String
		d.Column = col.String
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
