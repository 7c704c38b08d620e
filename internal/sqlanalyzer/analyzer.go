// Package sqlanalyzer extracts table and column references from rule SQL.
//
// The default implementation is a conservative regex analyzer: it must never
// miss a table the SQL actually touches, while false positives only cost the
// executor extra validation work. Callers needing exact analysis can plug in
// their own Analyzer at engine construction.
package sqlanalyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/brmkit/brm/internal/types"
)

// DefaultSchema is assumed when a table reference carries no schema part.
const DefaultSchema = "main"

// TableRef is one referenced table, split into its qualified parts.
type TableRef struct {
	Database string
	Schema   string
	Table    string
}

// ColumnRef is one referenced column with its usage direction.
type ColumnRef struct {
	Name  string
	Write bool
}

// Analysis is the result of analyzing one SQL statement.
type Analysis struct {
	OperationKind types.OperationKind
	Tables        []TableRef
	Columns       []ColumnRef
}

// Analyzer turns SQL text into the references the rule engine records as
// dependency rows.
type Analyzer interface {
	Analyze(ctx context.Context, sqlText string) (Analysis, error)
}

// Regex is the conservative regex-based Analyzer.
type Regex struct {
	// Schema assumed for unqualified tables. Empty means DefaultSchema.
	Schema string
}

var _ Analyzer = (*Regex)(nil)

// NewRegex returns the default regex analyzer.
func NewRegex() *Regex {
	return &Regex{}
}

var (
	// Table references following FROM, JOIN, INSERT INTO, UPDATE or
	// DELETE FROM. Identifiers may be quoted with brackets, backticks or
	// double quotes and qualified up to database.schema.table.
	tableRefRe = regexp.MustCompile(`(?is)\b(?:FROM|JOIN|INSERT\s+INTO|UPDATE|DELETE\s+FROM)\s+((?:[\[\x60"]?[\w$]+[\]\x60"]?\.){0,2}[\[\x60"]?[\w$]+[\]\x60"]?)`)

	// Column list of INSERT INTO t (a, b, c).
	insertColsRe = regexp.MustCompile(`(?is)\bINSERT\s+INTO\s+\S+\s*\(([^)]+)\)`)

	// Assignment targets in UPDATE ... SET a = 1, b = 2.
	setClauseRe = regexp.MustCompile(`(?is)\bSET\s+(.*?)(?:\bWHERE\b|$)`)
	assignRe    = regexp.MustCompile(`(?i)([\[\x60"]?[\w$]+[\]\x60"]?)\s*=`)

	// Column-shaped tokens in SELECT lists and WHERE clauses.
	selectListRe = regexp.MustCompile(`(?is)\bSELECT\s+(.*?)\bFROM\b`)
	whereRe      = regexp.MustCompile(`(?is)\bWHERE\b(.*)$`)
	identRe      = regexp.MustCompile(`(?i)\b([\w$]+)\b`)

	// Single-quoted string literals, removed before identifier scans so
	// their contents never masquerade as references.
	stringLitRe = regexp.MustCompile(`'[^']*'`)
)

// sqlKeywords are tokens that look like identifiers but never name columns.
var sqlKeywords = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "NULL": true, "IS": true, "IN": true,
	"LIKE": true, "BETWEEN": true, "EXISTS": true, "CASE": true, "WHEN": true,
	"THEN": true, "ELSE": true, "END": true, "AS": true, "ON": true, "ASC": true,
	"DESC": true, "DISTINCT": true, "ALL": true, "COUNT": true, "SUM": true,
	"AVG": true, "MIN": true, "MAX": true, "SELECT": true, "FROM": true,
	"WHERE": true, "GROUP": true, "ORDER": true, "BY": true, "HAVING": true,
	"LIMIT": true, "OFFSET": true, "JOIN": true, "INNER": true, "LEFT": true,
	"RIGHT": true, "OUTER": true, "CROSS": true, "UNION": true, "VALUES": true,
	"INTO": true, "SET": true, "UPDATE": true, "DELETE": true, "INSERT": true,
}

// Analyze classifies the statement and extracts its table and column
// references.
func (a *Regex) Analyze(_ context.Context, sqlText string) (Analysis, error) {
	trimmed := strings.TrimSpace(sqlText)
	analysis := Analysis{OperationKind: classify(trimmed)}
	if trimmed == "" {
		return analysis, nil
	}

	stripped := stringLitRe.ReplaceAllString(trimmed, "''")
	analysis.Tables = a.extractTables(stripped)
	analysis.Columns = extractColumns(stripped, analysis.OperationKind)
	return analysis, nil
}

// classify maps the leading keyword to an operation kind. Anything that is
// not one of the four DML verbs is OTHER; the lifecycle layer substitutes
// DECISION_TABLE for empty SQL with a decision-table reference.
func classify(trimmed string) types.OperationKind {
	if trimmed == "" {
		return types.OpOther
	}
	first := trimmed
	if i := strings.IndexFunc(trimmed, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' }); i > 0 {
		first = trimmed[:i]
	}
	switch strings.ToUpper(first) {
	case "SELECT":
		return types.OpSelect
	case "INSERT":
		return types.OpInsert
	case "UPDATE":
		return types.OpUpdate
	case "DELETE":
		return types.OpDelete
	}
	return types.OpOther
}

func (a *Regex) extractTables(sqlText string) []TableRef {
	schema := a.Schema
	if schema == "" {
		schema = DefaultSchema
	}

	seen := make(map[TableRef]bool)
	var tables []TableRef
	for _, m := range tableRefRe.FindAllStringSubmatch(sqlText, -1) {
		ref := splitQualified(m[1], schema)
		if ref.Table == "" || sqlKeywords[strings.ToUpper(ref.Table)] {
			continue
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		tables = append(tables, ref)
	}
	return tables
}

// splitQualified breaks db.schema.table / schema.table / table into parts,
// removing bracket, backtick and double-quote quoting.
func splitQualified(raw, defaultSchema string) TableRef {
	parts := strings.Split(raw, ".")
	for i, p := range parts {
		parts[i] = unquote(p)
	}
	switch len(parts) {
	case 3:
		return TableRef{Database: parts[0], Schema: parts[1], Table: parts[2]}
	case 2:
		return TableRef{Schema: parts[0], Table: parts[1]}
	default:
		return TableRef{Schema: defaultSchema, Table: parts[0]}
	}
}

func unquote(s string) string {
	return strings.Trim(s, "[]`\"")
}

func extractColumns(sqlText string, kind types.OperationKind) []ColumnRef {
	seen := make(map[ColumnRef]bool)
	var cols []ColumnRef
	add := func(name string, write bool) {
		name = unquote(strings.TrimSpace(name))
		if name == "" || name == "*" || sqlKeywords[strings.ToUpper(name)] || isNumeric(name) {
			return
		}
		ref := ColumnRef{Name: name, Write: write}
		if seen[ref] {
			return
		}
		seen[ref] = true
		cols = append(cols, ref)
	}

	// Write targets: INSERT column lists and UPDATE SET assignments.
	if m := insertColsRe.FindStringSubmatch(sqlText); m != nil {
		for _, c := range strings.Split(m[1], ",") {
			add(c, true)
		}
	}
	if kind == types.OpUpdate {
		if m := setClauseRe.FindStringSubmatch(sqlText); m != nil {
			for _, am := range assignRe.FindAllStringSubmatch(m[1], -1) {
				add(am[1], true)
			}
		}
	}

	// Read columns: SELECT list and WHERE clause identifiers, best effort.
	if m := selectListRe.FindStringSubmatch(sqlText); m != nil {
		for _, im := range identRe.FindAllStringSubmatch(m[1], -1) {
			add(im[1], false)
		}
	}
	if m := whereRe.FindStringSubmatch(sqlText); m != nil {
		for _, im := range identRe.FindAllStringSubmatch(m[1], -1) {
			add(im[1], false)
		}
	}
	return cols
}

func isNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// Dependencies converts an analysis into the dependency rows stored for a
// rule. Mutating statements record their tables as WRITE, reads as READ.
func Dependencies(a Analysis) []types.TableDependency {
	op := types.ColumnRead
	if a.OperationKind.IsWrite() {
		op = types.ColumnWrite
	}
	deps := make([]types.TableDependency, 0, len(a.Tables))
	for _, t := range a.Tables {
		deps = append(deps, types.TableDependency{
			Database: t.Database,
			Table:    t.Table,
			Op:       op,
		})
	}
	return deps
}
