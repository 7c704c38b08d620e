package sqlanalyzer_test

import (
	"context"
	"testing"

	"github.com/brmkit/brm/internal/sqlanalyzer"
	"github.com/brmkit/brm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, sqlText string) sqlanalyzer.Analysis {
	t.Helper()
	a, err := sqlanalyzer.NewRegex().Analyze(context.Background(), sqlText)
	require.NoError(t, err, "Analyze(%q)", sqlText)
	return a
}

func hasTable(a sqlanalyzer.Analysis, schema, table string) bool {
	for _, ref := range a.Tables {
		if ref.Schema == schema && ref.Table == table {
			return true
		}
	}
	return false
}

func hasColumn(a sqlanalyzer.Analysis, name string, write bool) bool {
	for _, ref := range a.Columns {
		if ref.Name == name && ref.Write == write {
			return true
		}
	}
	return false
}

func TestClassifyOperationKind(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want types.OperationKind
	}{
		{"Select", "SELECT 1", types.OpSelect},
		{"Select Lowercase", "  select * from t", types.OpSelect},
		{"Insert", "INSERT INTO t (a) VALUES (1)", types.OpInsert},
		{"Update", "UPDATE t SET a = 1", types.OpUpdate},
		{"Delete Lowercase", "delete from t where a = 1", types.OpDelete},
		{"DDL Is Other", "CREATE TABLE t (a INT)", types.OpOther},
		{"Empty", "", types.OpOther},
		{"Whitespace", "   ", types.OpOther},
		{"No Space After Keyword", "SELECT(1)", types.OpSelect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analyze(t, tt.sql).OperationKind)
		})
	}
}

func TestExtractTablesFromSelect(t *testing.T) {
	a := analyze(t, "SELECT o.id, c.name FROM orders o JOIN customers c ON o.cust_id = c.id")
	assert.True(t, hasTable(a, "main", "orders"), "missing orders table: %+v", a.Tables)
	assert.True(t, hasTable(a, "main", "customers"), "missing customers table: %+v", a.Tables)
}

func TestExtractQualifiedTables(t *testing.T) {
	a := analyze(t, "SELECT * FROM sales.orders JOIN warehouse.inventory.stock s ON 1=1")
	assert.True(t, hasTable(a, "sales", "orders"), "missing sales.orders: %+v", a.Tables)
	assert.Contains(t, a.Tables, sqlanalyzer.TableRef{Database: "warehouse", Schema: "inventory", Table: "stock"})
}

func TestBracketedIdentifiersUnbracketed(t *testing.T) {
	a := analyze(t, "UPDATE [ORDER_ITEMS] SET [QTY] = 5 WHERE [ITEM_ID] = 9")
	assert.True(t, hasTable(a, "main", "ORDER_ITEMS"), "bracketed table not unbracketed: %+v", a.Tables)
	assert.True(t, hasColumn(a, "QTY", true), "bracketed SET column not extracted: %+v", a.Columns)
}

func TestInsertColumnsAreWrites(t *testing.T) {
	a := analyze(t, "INSERT INTO audit_trail (event, actor, at) VALUES ('x', 'y', 1)")
	require.True(t, hasTable(a, "main", "audit_trail"), "missing insert target: %+v", a.Tables)
	for _, col := range []string{"event", "actor", "at"} {
		assert.True(t, hasColumn(a, col, true), "missing write column %s: %+v", col, a.Columns)
	}
}

func TestUpdateSetColumnsAreWrites(t *testing.T) {
	a := analyze(t, "UPDATE accounts SET balance = 0, frozen = 1 WHERE owner_id = 7")
	assert.True(t, hasColumn(a, "balance", true), "missing SET write column: %+v", a.Columns)
	assert.True(t, hasColumn(a, "frozen", true), "missing SET write column: %+v", a.Columns)
	assert.True(t, hasColumn(a, "owner_id", false), "missing WHERE read column: %+v", a.Columns)
}

func TestSelectAndWhereColumnsAreReads(t *testing.T) {
	a := analyze(t, "SELECT total, status FROM invoices WHERE region = 'EU' AND total > 100")
	for _, col := range []string{"total", "status", "region"} {
		assert.True(t, hasColumn(a, col, false), "missing read column %s: %+v", col, a.Columns)
	}
	assert.False(t, hasColumn(a, "AND", false), "keyword leaked into columns: %+v", a.Columns)
	assert.False(t, hasColumn(a, "EU", false), "literal leaked into columns: %+v", a.Columns)
}

func TestCustomDefaultSchema(t *testing.T) {
	a := &sqlanalyzer.Regex{Schema: "dbo"}
	got, err := a.Analyze(context.Background(), "SELECT * FROM widgets")
	require.NoError(t, err)
	assert.True(t, hasTable(got, "dbo", "widgets"), "custom default schema not applied: %+v", got.Tables)
}

func TestSubqueryTablesStillFound(t *testing.T) {
	a := analyze(t, "SELECT * FROM (SELECT id FROM inner_t) x JOIN outer_t ON 1=1")
	assert.True(t, hasTable(a, "main", "inner_t"), "missing subquery table: %+v", a.Tables)
	assert.True(t, hasTable(a, "main", "outer_t"), "missing joined table: %+v", a.Tables)
}

func TestDuplicateTablesDeduplicated(t *testing.T) {
	a := analyze(t, "SELECT * FROM t JOIN t ON 1=1")
	count := 0
	for _, ref := range a.Tables {
		if ref.Table == "t" {
			count++
		}
	}
	assert.Equal(t, 1, count, "expected single entry for t")
}

func TestDependenciesDirection(t *testing.T) {
	writeDeps := sqlanalyzer.Dependencies(analyze(t, "UPDATE t SET a = 1"))
	require.Len(t, writeDeps, 1)
	assert.Equal(t, types.ColumnWrite, writeDeps[0].Op)

	readDeps := sqlanalyzer.Dependencies(analyze(t, "SELECT a FROM t"))
	require.Len(t, readDeps, 1)
	assert.Equal(t, types.ColumnRead, readDeps[0].Op)
	assert.Equal(t, "t", readDeps[0].Table)
}

func TestEmptySQL(t *testing.T) {
	a := analyze(t, "")
	assert.Equal(t, types.OpOther, a.OperationKind)
	assert.Empty(t, a.Tables)
	assert.Empty(t, a.Columns)
}
