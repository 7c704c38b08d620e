package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// GraphSnapshot loads every edge source the dependency graph builder
// consumes in one call: all rules (hierarchy edges live in PARENT_RULE_ID),
// global-critical links, conflicts and composite expressions.
func (s *Store) GraphSnapshot(ctx context.Context) (*storage.GraphSnapshot, error) {
	rules, err := s.ListRules(ctx, types.RuleFilter{})
	if err != nil {
		return nil, err
	}

	links, err := s.listGlobalCriticalLinks(ctx)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.listConflicts(ctx)
	if err != nil {
		return nil, err
	}

	composites, err := s.listComposites(ctx)
	if err != nil {
		return nil, err
	}

	return &storage.GraphSnapshot{
		Rules:      rules,
		Links:      links,
		Conflicts:  conflicts,
		Composites: composites,
	}, nil
}

func (s *Store) listGlobalCriticalLinks(ctx context.Context) ([]types.GlobalCriticalLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT GCR_RULE_ID, TARGET_RULE_ID FROM BRM_GLOBAL_CRITICAL_LINKS ORDER BY LINK_ID`)
	if err != nil {
		return nil, wrapDBError("list global critical links", err)
	}
	defer func() { _ = rows.Close() }()

	var links []types.GlobalCriticalLink
	for rows.Next() {
		var l types.GlobalCriticalLink
		if err := rows.Scan(&l.GCRRuleID, &l.TargetRuleID); err != nil {
			return nil, wrapDBError("scan global critical link", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *Store) listConflicts(ctx context.Context) ([]types.Conflict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT RULE_ID1, RULE_ID2, PRIORITY FROM BRM_RULE_CONFLICTS ORDER BY CONFLICT_ID`)
	if err != nil {
		return nil, wrapDBError("list conflicts", err)
	}
	defer func() { _ = rows.Close() }()

	var conflicts []types.Conflict
	for rows.Next() {
		var c types.Conflict
		if err := rows.Scan(&c.RuleID1, &c.RuleID2, &c.Priority); err != nil {
			return nil, wrapDBError("scan conflict", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func (s *Store) listComposites(ctx context.Context) ([]types.CompositeRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT RULE_ID, LOGIC_EXPR FROM BRM_COMPOSITE_RULES ORDER BY RULE_ID`)
	if err != nil {
		return nil, wrapDBError("list composite rules", err)
	}
	defer func() { _ = rows.Close() }()

	var composites []types.CompositeRule
	for rows.Next() {
		var c types.CompositeRule
		if err := rows.Scan(&c.RuleID, &c.LogicExpr); err != nil {
			return nil, wrapDBError("scan composite rule", err)
		}
		composites = append(composites, c)
	}
	return composites, rows.Err()
}

// AddConflict records a pairwise ordering constraint. Both rules must exist
// and a pair may only be recorded once regardless of priority.
func (s *Store) AddConflict(ctx context.Context, c types.Conflict, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if c.RuleID1 == c.RuleID2 {
		return fmt.Errorf("a rule cannot conflict with itself")
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		for _, id := range []int64{c.RuleID1, c.RuleID2} {
			if _, err := getRule(ctx, conn, id); err != nil {
				return err
			}
		}
		var n int
		err := conn.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM BRM_RULE_CONFLICTS
			WHERE (RULE_ID1 = ? AND RULE_ID2 = ?) OR (RULE_ID1 = ? AND RULE_ID2 = ?)
		`, c.RuleID1, c.RuleID2, c.RuleID2, c.RuleID1).Scan(&n)
		if err != nil {
			return wrapDBError("check existing conflict", err)
		}
		if n > 0 {
			return fmt.Errorf("conflict between rules %d and %d already recorded: %w",
				c.RuleID1, c.RuleID2, storage.ErrConstraintViolation)
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO BRM_RULE_CONFLICTS (RULE_ID1, RULE_ID2, PRIORITY) VALUES (?, ?, ?)
		`, c.RuleID1, c.RuleID2, c.Priority); err != nil {
			return wrapDBError("insert conflict", err)
		}
		return nil
	})
}

// AddGlobalCriticalLink records a gating edge from a global-critical rule to
// a target rule.
func (s *Store) AddGlobalCriticalLink(ctx context.Context, l types.GlobalCriticalLink, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if l.GCRRuleID == l.TargetRuleID {
		return fmt.Errorf("a rule cannot gate itself")
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		for _, id := range []int64{l.GCRRuleID, l.TargetRuleID} {
			if _, err := getRule(ctx, conn, id); err != nil {
				return err
			}
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO BRM_GLOBAL_CRITICAL_LINKS (GCR_RULE_ID, TARGET_RULE_ID) VALUES (?, ?)
		`, l.GCRRuleID, l.TargetRuleID); err != nil {
			return wrapDBError("insert global critical link", err)
		}
		return nil
	})
}

// SetCompositeExpr stores (or replaces) the logic expression of a composite
// rule. The parser extracts Rule<N> references from it at graph build time.
func (s *Store) SetCompositeExpr(ctx context.Context, ruleID int64, expr string, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if expr == "" {
		return fmt.Errorf("logic expression is required")
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if _, err := getRule(ctx, conn, ruleID); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO BRM_COMPOSITE_RULES (RULE_ID, LOGIC_EXPR) VALUES (?, ?)
			ON CONFLICT(RULE_ID) DO UPDATE SET LOGIC_EXPR = excluded.LOGIC_EXPR
		`, ruleID, expr); err != nil {
			return wrapDBError("set composite expression", err)
		}
		return nil
	})
}

// ColumnMappingsForRule returns the mappings where the rule is the source.
// Returns the empty set when the mapping table is absent.
func (s *Store) ColumnMappingsForRule(ctx context.Context, ruleID int64) ([]types.ColumnMapping, error) {
	if !s.columnMappingsAvailable(ctx) {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT MAPPING_ID, RULE_ID, TARGET_RULE_ID, SOURCE_COLUMN, TARGET_COLUMN
		FROM BRM_COLUMN_MAPPINGS WHERE RULE_ID = ? ORDER BY MAPPING_ID
	`, ruleID)
	if err != nil {
		return nil, wrapDBError("list column mappings", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []types.ColumnMapping
	for rows.Next() {
		var m types.ColumnMapping
		var src, dst sql.NullString
		if err := rows.Scan(&m.ID, &m.RuleID, &m.TargetRuleID, &src, &dst); err != nil {
			return nil, wrapDBError("scan column mapping", err)
		}
		m.SourceColumn = src.String
		m.TargetColumn = dst.String
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// ListColumnMappings returns every mapping row, or the empty set when the
// mapping table is absent.
func (s *Store) ListColumnMappings(ctx context.Context) ([]types.ColumnMapping, error) {
	if !s.columnMappingsAvailable(ctx) {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT MAPPING_ID, RULE_ID, TARGET_RULE_ID, SOURCE_COLUMN, TARGET_COLUMN
		FROM BRM_COLUMN_MAPPINGS ORDER BY MAPPING_ID
	`)
	if err != nil {
		return nil, wrapDBError("list column mappings", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []types.ColumnMapping
	for rows.Next() {
		var m types.ColumnMapping
		var src, dst sql.NullString
		if err := rows.Scan(&m.ID, &m.RuleID, &m.TargetRuleID, &src, &dst); err != nil {
			return nil, wrapDBError("scan column mapping", err)
		}
		m.SourceColumn = src.String
		m.TargetColumn = dst.String
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// HasColumnMappingRefs reports whether any mapping references the rule on
// either side. Absence of the mapping table means no references.
func (s *Store) HasColumnMappingRefs(ctx context.Context, ruleID int64) (bool, error) {
	if !s.columnMappingsAvailable(ctx) {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM BRM_COLUMN_MAPPINGS WHERE RULE_ID = ? OR TARGET_RULE_ID = ?
	`, ruleID, ruleID).Scan(&n)
	if err != nil {
		return false, wrapDBError("count column mapping references", err)
	}
	return n > 0, nil
}

// AddColumnMapping links a column of one rule's output to another rule's
// input.
func (s *Store) AddColumnMapping(ctx context.Context, m types.ColumnMapping, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if !s.columnMappingsAvailable(ctx) {
		return fmt.Errorf("column mapping table is not present in this database")
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		for _, id := range []int64{m.RuleID, m.TargetRuleID} {
			if _, err := getRule(ctx, conn, id); err != nil {
				return err
			}
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO BRM_COLUMN_MAPPINGS (RULE_ID, TARGET_RULE_ID, SOURCE_COLUMN, TARGET_COLUMN)
			VALUES (?, ?, ?, ?)
		`, m.RuleID, m.TargetRuleID, nullableString(m.SourceColumn), nullableString(m.TargetColumn)); err != nil {
			return wrapDBError("insert column mapping", err)
		}
		return nil
	})
}
