// Package validation runs configured data-quality checks against the target
// database.
//
// Every run appends exactly one row to the validation log, pass or fail.
// Query failures (missing table, bad column) are recorded as FAIL with the
// driver's message rather than propagated: a broken check must not take the
// executor down, it gates the rules depending on that table.
package validation

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// regexSampleLimit bounds how many rows a REGEX validation inspects.
const regexSampleLimit = 500

// identifier charset permitted in interpolated table/column names.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$.]*$`)

// Runner evaluates validations and writes their log rows.
type Runner struct {
	store       storage.Store
	target      *sql.DB
	sampleLimit int
}

// NewRunner returns a Runner checking data in target and logging through
// store.
func NewRunner(store storage.Store, target *sql.DB) *Runner {
	return &Runner{store: store, target: target, sampleLimit: regexSampleLimit}
}

// Run evaluates one validation and appends its log row. The returned error
// covers context cancellation and log-append failures only; data failures
// are reported through the log entry's Result.
func (r *Runner) Run(ctx context.Context, v *types.Validation) (*types.ValidationLog, error) {
	pass, message := r.evaluate(ctx, v)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := types.ValidationPass
	if !pass {
		result = types.ValidationFail
	}
	entry := &types.ValidationLog{
		ValidationID: v.ID,
		Table:        v.Table,
		Column:       v.Column,
		Type:         v.Type,
		Params:       v.Params,
		Result:       result,
		Message:      message,
		ValidatedAt:  time.Now().UTC(),
	}
	if err := r.store.AppendValidationLog(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RunForTable evaluates every validation configured for the table.
func (r *Runner) RunForTable(ctx context.Context, table string) ([]*types.ValidationLog, error) {
	validations, err := r.store.ValidationsForTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return r.runAll(ctx, validations)
}

// RunAll evaluates every configured validation.
func (r *Runner) RunAll(ctx context.Context) ([]*types.ValidationLog, error) {
	validations, err := r.store.ListValidations(ctx)
	if err != nil {
		return nil, err
	}
	return r.runAll(ctx, validations)
}

func (r *Runner) runAll(ctx context.Context, validations []*types.Validation) ([]*types.ValidationLog, error) {
	logs := make([]*types.ValidationLog, 0, len(validations))
	for _, v := range validations {
		entry, err := r.Run(ctx, v)
		if err != nil {
			return logs, err
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

// Passed reports whether every log in the slice passed.
func Passed(logs []*types.ValidationLog) bool {
	for _, l := range logs {
		if l.Result != types.ValidationPass {
			return false
		}
	}
	return true
}

func (r *Runner) evaluate(ctx context.Context, v *types.Validation) (bool, string) {
	if !identifierRe.MatchString(v.Table) || !identifierRe.MatchString(v.Column) {
		return false, fmt.Sprintf("invalid identifier %s.%s", v.Table, v.Column)
	}

	switch v.Type {
	case types.ValidationNotNull:
		return r.checkNotNull(ctx, v)
	case types.ValidationRange:
		return r.checkRange(ctx, v)
	case types.ValidationRegex:
		return r.checkRegex(ctx, v)
	case types.ValidationForeignKey:
		return r.checkForeignKey(ctx, v)
	}
	return false, fmt.Sprintf("Unknown validation type: %s", v.Type)
}

func (r *Runner) checkNotNull(ctx context.Context, v *types.Validation) (bool, string) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", v.Table, v.Column)
	if err := r.target.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return false, err.Error()
	}
	if n > 0 {
		return false, fmt.Sprintf("%d NULL values in %s.%s", n, v.Table, v.Column)
	}
	return true, ""
}

func (r *Runner) checkRange(ctx context.Context, v *types.Validation) (bool, string) {
	parts := strings.SplitN(v.Params, ",", 2)
	if len(parts) != 2 {
		return false, fmt.Sprintf("invalid RANGE params %q (want \"min,max\")", v.Params)
	}
	min, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	max, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return false, fmt.Sprintf("invalid RANGE params %q (want \"min,max\")", v.Params)
	}

	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < ? OR %s > ?", v.Table, v.Column, v.Column)
	if err := r.target.QueryRowContext(ctx, query, min, max).Scan(&n); err != nil {
		return false, err.Error()
	}
	if n > 0 {
		return false, fmt.Sprintf("%d values in %s.%s outside [%v, %v]", n, v.Table, v.Column, min, max)
	}
	return true, ""
}

func (r *Runner) checkRegex(ctx context.Context, v *types.Validation) (bool, string) {
	pattern, err := regexp.Compile(v.Params)
	if err != nil {
		return false, fmt.Sprintf("invalid REGEX params %q: %v", v.Params, err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		v.Column, v.Table, v.Column, r.sampleLimit)
	rows, err := r.target.QueryContext(ctx, query)
	if err != nil {
		return false, err.Error()
	}
	defer func() { _ = rows.Close() }()

	sampled, mismatched := 0, 0
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return false, err.Error()
		}
		sampled++
		if !pattern.MatchString(value) {
			mismatched++
		}
	}
	if err := rows.Err(); err != nil {
		return false, err.Error()
	}
	if mismatched > 0 {
		return false, fmt.Sprintf("%d of %d sampled values in %s.%s do not match %q",
			mismatched, sampled, v.Table, v.Column, v.Params)
	}
	return true, ""
}

func (r *Runner) checkForeignKey(ctx context.Context, v *types.Validation) (bool, string) {
	parts := strings.SplitN(v.Params, ",", 2)
	if len(parts) != 2 {
		return false, fmt.Sprintf("invalid FOREIGN_KEY params %q (want \"ref_table,ref_column\")", v.Params)
	}
	refTable := strings.TrimSpace(parts[0])
	refColumn := strings.TrimSpace(parts[1])
	if !identifierRe.MatchString(refTable) || !identifierRe.MatchString(refColumn) {
		return false, fmt.Sprintf("invalid identifier %s.%s", refTable, refColumn)
	}

	var n int64
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s NOT IN (SELECT %s FROM %s)",
		v.Table, v.Column, v.Column, refColumn, refTable)
	if err := r.target.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return false, err.Error()
	}
	if n > 0 {
		return false, fmt.Sprintf("%d values in %s.%s missing from %s.%s",
			n, v.Table, v.Column, refTable, refColumn)
	}
	return true, ""
}
