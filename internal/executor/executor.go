// Package executor walks the dependency graph and runs rule SQL against the
// target database.
//
// Traversal is breadth-first from the requested start rules (graph roots by
// default). A rule executes only after its not-yet-skipped parents; failures
// are captured per rule in the execution log and never abort the traversal.
// A critical failure skip-propagates depth-first to every descendant.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/brmkit/brm/internal/graph"
	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/telemetry"
	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/validation"
)

const scopeName = "github.com/brmkit/brm/executor"

var (
	// ErrExecutionFailed reports that a targeted rule ran and did not pass.
	ErrExecutionFailed = errors.New("rule execution failed")

	// ErrValidationFailed reports that data validations gated a targeted
	// rule off.
	ErrValidationFailed = errors.New("data validation failed")
)

// Options tune a single Execute call.
type Options struct {
	// SkipValidations bypasses the data-validation gate.
	SkipValidations bool
}

// Result is the outcome of one graph traversal. Executed lists rules that
// ran and passed; Skipped lists rules that failed, were gated off by
// validations, or were skip-propagated from a critical failure.
type Result struct {
	Executed           []int64
	Skipped            []int64
	ValidationFailures []string
}

// DidExecute reports whether id ran and passed.
func (r *Result) DidExecute(id int64) bool {
	for _, got := range r.Executed {
		if got == id {
			return true
		}
	}
	return false
}

// Executor runs rules. The metadata store supplies the graph and receives
// execution logs; rule SQL runs against the separate target handle.
type Executor struct {
	store       storage.Store
	target      *sql.DB
	validations *validation.Runner
	logger      *log.Logger

	executed metric.Int64Counter
	failed   metric.Int64Counter
	skipped  metric.Int64Counter
	duration metric.Float64Histogram
}

// New returns an Executor. A nil logger logs through the default logger.
func New(store storage.Store, target *sql.DB, validations *validation.Runner, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	m := telemetry.Meter(scopeName)
	executed, _ := m.Int64Counter("brm.rules.executed",
		metric.WithDescription("Rules executed and passed"))
	failed, _ := m.Int64Counter("brm.rules.failed",
		metric.WithDescription("Rules whose SQL ran and failed"))
	skipped, _ := m.Int64Counter("brm.rules.skipped",
		metric.WithDescription("Rules skipped by validation gates or critical failures"))
	duration, _ := m.Float64Histogram("brm.execution.duration",
		metric.WithDescription("Rule execution duration in milliseconds"),
		metric.WithUnit("ms"))
	return &Executor{
		store:       store,
		target:      target,
		validations: validations,
		logger:      logger,
		executed:    executed,
		failed:      failed,
		skipped:     skipped,
		duration:    duration,
	}
}

// Execute traverses the graph from startIDs, or from the graph roots when
// startIDs is empty. The returned error covers infrastructure failures only;
// per-rule outcomes land in the Result and the execution log.
func (e *Executor) Execute(ctx context.Context, startIDs []int64, opts Options) (*Result, error) {
	snap, err := e.store.GraphSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	g := graph.Build(snap)

	rules := make(map[int64]*types.Rule, len(snap.Rules))
	for _, r := range snap.Rules {
		rules[r.ID] = r
	}

	queue := append([]int64(nil), startIDs...)
	if len(queue) == 0 {
		queue = g.Roots()
	}

	res := &Result{}
	visited := make(map[int64]bool)
	skipSet := make(map[int64]bool)

	for len(queue) > 0 {
		rid := queue[0]
		queue = queue[1:]
		if visited[rid] || skipSet[rid] {
			continue
		}
		visited[rid] = true

		rule, ok := rules[rid]
		if !ok {
			continue
		}

		if !opts.SkipValidations {
			failures, err := e.validationGate(ctx, rid)
			if err != nil {
				return res, err
			}
			if len(failures) > 0 {
				res.ValidationFailures = append(res.ValidationFailures, failures...)
				e.logger.Printf("rule %d gated off by %d validation failure(s)", rid, len(failures))
				e.propagateSkip(ctx, g, rid, skipSet, res)
				continue
			}
		}

		o := e.runRule(ctx, rule)
		entry := &types.ExecutionLog{
			RuleID:      rid,
			Passed:      o.pass,
			Message:     o.message,
			RecordCount: o.records,
			ElapsedMS:   o.elapsed.Milliseconds(),
		}
		if err := e.store.AppendExecutionLog(ctx, entry); err != nil {
			return res, err
		}
		e.duration.Record(ctx, float64(o.elapsed.Milliseconds()),
			metric.WithAttributes(attribute.Int64("rule.id", rid)))

		if o.pass {
			res.Executed = append(res.Executed, rid)
			e.executed.Add(ctx, 1)
			for _, next := range g.Neighbors(rid) {
				if !visited[next] && !skipSet[next] {
					queue = append(queue, next)
				}
			}
			continue
		}

		e.failed.Add(ctx, 1)
		e.logger.Printf("rule %d failed: %s", rid, o.message)
		if rule.IsCritical() {
			e.propagateSkip(ctx, g, rid, skipSet, res)
		} else {
			skipSet[rid] = true
			res.Skipped = append(res.Skipped, rid)
		}
	}
	return res, nil
}

// validationGate runs every validation configured for the rule's dependency
// tables, returning the failure messages.
func (e *Executor) validationGate(ctx context.Context, rid int64) ([]string, error) {
	deps, err := e.store.GetTableDeps(ctx, rid)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var failures []string
	for _, dep := range deps {
		if seen[dep.Table] {
			continue
		}
		seen[dep.Table] = true
		logs, err := e.validations.RunForTable(ctx, dep.Table)
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			if l.Result != types.ValidationPass {
				failures = append(failures, fmt.Sprintf("rule %d: %s %s.%s: %s",
					rid, l.Type, l.Table, l.Column, l.Message))
			}
		}
	}
	return failures, nil
}

// propagateSkip marks the rule and every reachable descendant skipped.
func (e *Executor) propagateSkip(ctx context.Context, g *graph.Graph, rid int64, skipSet map[int64]bool, res *Result) {
	mark := func(id int64) {
		if skipSet[id] {
			return
		}
		skipSet[id] = true
		res.Skipped = append(res.Skipped, id)
		e.skipped.Add(ctx, 1)
	}
	mark(rid)
	for _, id := range g.Descendants(rid) {
		mark(id)
	}
}

type outcome struct {
	pass    bool
	message string
	records int64
	elapsed time.Duration
}

// runRule executes one rule's SQL inside a target transaction. Rules with no
// SQL (decision-table and composite rules) pass without touching the target.
func (e *Executor) runRule(ctx context.Context, rule *types.Rule) outcome {
	start := time.Now()
	if strings.TrimSpace(rule.SQL) == "" {
		return outcome{pass: true, message: "no SQL; rule passes by definition", elapsed: time.Since(start)}
	}

	tx, err := e.target.BeginTx(ctx, nil)
	if err != nil {
		return outcome{message: classifyError(err), elapsed: time.Since(start)}
	}

	var o outcome
	if rule.OperationKind.IsWrite() {
		o = runWrite(ctx, tx, rule.SQL)
	} else {
		o = runQuery(ctx, tx, rule.SQL)
	}

	if o.pass {
		if err := tx.Commit(); err != nil {
			o = outcome{message: classifyError(err)}
		}
	} else {
		_ = tx.Rollback()
	}
	o.elapsed = time.Since(start)
	return o
}

// runWrite passes when the statement executes; RecordCount is the affected
// row count.
func runWrite(ctx context.Context, tx *sql.Tx, sqlText string) outcome {
	res, err := tx.ExecContext(ctx, sqlText)
	if err != nil {
		return outcome{message: classifyError(err)}
	}
	n, _ := res.RowsAffected()
	return outcome{pass: true, records: n}
}

// runQuery passes when the statement returns no rows or the first row's
// first column equals integer 1.
func runQuery(ctx context.Context, tx *sql.Tx, sqlText string) outcome {
	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return outcome{message: classifyError(err)}
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return outcome{message: classifyError(err)}
		}
		return outcome{pass: true}
	}
	var first interface{}
	if err := rows.Scan(&first); err != nil {
		return outcome{message: classifyError(err)}
	}
	if !firstColumnIsOne(first) {
		return outcome{records: 1, message: fmt.Sprintf("first column = %v, want 1", first)}
	}
	return outcome{pass: true, records: 1}
}

// firstColumnIsOne applies the pass condition across driver value types.
func firstColumnIsOne(v interface{}) bool {
	switch x := v.(type) {
	case int64:
		return x == 1
	case int:
		return x == 1
	case float64:
		return x == 1
	case bool:
		return x
	case []byte:
		return string(x) == "1"
	case string:
		return x == "1"
	}
	return false
}

// classifyError marks missing-object errors for friendlier operator
// feedback; everything else passes through verbatim.
func classifyError(err error) string {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "no such table") ||
		strings.Contains(lower, "doesn't exist") ||
		strings.Contains(lower, "invalid object") {
		return fmt.Sprintf("invalid object: %v", err)
	}
	return err.Error()
}
