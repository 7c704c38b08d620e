package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

const storageScopeName = "github.com/brmkit/brm/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in brm.storage.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner  storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("brm.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("brm.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("brm.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func actorAttr(actor types.Actor) attribute.KeyValue {
	return attribute.String("brm.actor", actor.UserID)
}

func ruleAttr(id int64) attribute.KeyValue {
	return attribute.Int64("brm.rule.id", id)
}

// ── Rules ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateRule(ctx context.Context, rule *types.Rule, deps []types.TableDependency, actor types.Actor) error {
	attrs := []attribute.KeyValue{
		actorAttr(actor),
		attribute.String("brm.rule.group", rule.OwnerGroup),
	}
	ctx, span, t := s.op(ctx, "CreateRule", attrs...)
	err := s.inner.CreateRule(ctx, rule, deps, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetRule(ctx context.Context, id int64) (*types.Rule, error) {
	attrs := []attribute.KeyValue{ruleAttr(id)}
	ctx, span, t := s.op(ctx, "GetRule", attrs...)
	v, err := s.inner.GetRule(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetRuleByName(ctx context.Context, ownerGroup, name string) (*types.Rule, error) {
	ctx, span, t := s.op(ctx, "GetRuleByName")
	v, err := s.inner.GetRuleByName(ctx, ownerGroup, name)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListRules(ctx context.Context, filter types.RuleFilter) ([]*types.Rule, error) {
	ctx, span, t := s.op(ctx, "ListRules")
	v, err := s.inner.ListRules(ctx, filter)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListChildren(ctx context.Context, parentID int64) ([]*types.Rule, error) {
	attrs := []attribute.KeyValue{ruleAttr(parentID)}
	ctx, span, t := s.op(ctx, "ListChildren", attrs...)
	v, err := s.inner.ListChildren(ctx, parentID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) UpdateRuleFields(ctx context.Context, id int64, updates map[string]interface{}, action types.AuditAction, actor types.Actor) (*types.Rule, error) {
	attrs := []attribute.KeyValue{
		ruleAttr(id),
		actorAttr(actor),
		attribute.String("brm.audit.action", string(action)),
	}
	ctx, span, t := s.op(ctx, "UpdateRuleFields", attrs...)
	v, err := s.inner.UpdateRuleFields(ctx, id, updates, action, actor)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) DeleteRule(ctx context.Context, id int64, actor types.Actor) error {
	attrs := []attribute.KeyValue{ruleAttr(id), actorAttr(actor)}
	ctx, span, t := s.op(ctx, "DeleteRule", attrs...)
	err := s.inner.DeleteRule(ctx, id, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetTableDeps(ctx context.Context, ruleID int64) ([]types.TableDependency, error) {
	attrs := []attribute.KeyValue{ruleAttr(ruleID)}
	ctx, span, t := s.op(ctx, "GetTableDeps", attrs...)
	v, err := s.inner.GetTableDeps(ctx, ruleID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Graph edges ─────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GraphSnapshot(ctx context.Context) (*storage.GraphSnapshot, error) {
	ctx, span, t := s.op(ctx, "GraphSnapshot")
	v, err := s.inner.GraphSnapshot(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) AddConflict(ctx context.Context, c types.Conflict, actor types.Actor) error {
	attrs := []attribute.KeyValue{actorAttr(actor)}
	ctx, span, t := s.op(ctx, "AddConflict", attrs...)
	err := s.inner.AddConflict(ctx, c, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) AddGlobalCriticalLink(ctx context.Context, l types.GlobalCriticalLink, actor types.Actor) error {
	attrs := []attribute.KeyValue{actorAttr(actor)}
	ctx, span, t := s.op(ctx, "AddGlobalCriticalLink", attrs...)
	err := s.inner.AddGlobalCriticalLink(ctx, l, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) SetCompositeExpr(ctx context.Context, ruleID int64, expr string, actor types.Actor) error {
	attrs := []attribute.KeyValue{ruleAttr(ruleID), actorAttr(actor)}
	ctx, span, t := s.op(ctx, "SetCompositeExpr", attrs...)
	err := s.inner.SetCompositeExpr(ctx, ruleID, expr, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Column mappings ─────────────────────────────────────────────────────────

func (s *InstrumentedStore) ColumnMappingsForRule(ctx context.Context, ruleID int64) ([]types.ColumnMapping, error) {
	attrs := []attribute.KeyValue{ruleAttr(ruleID)}
	ctx, span, t := s.op(ctx, "ColumnMappingsForRule", attrs...)
	v, err := s.inner.ColumnMappingsForRule(ctx, ruleID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListColumnMappings(ctx context.Context) ([]types.ColumnMapping, error) {
	ctx, span, t := s.op(ctx, "ListColumnMappings")
	v, err := s.inner.ListColumnMappings(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) HasColumnMappingRefs(ctx context.Context, ruleID int64) (bool, error) {
	attrs := []attribute.KeyValue{ruleAttr(ruleID)}
	ctx, span, t := s.op(ctx, "HasColumnMappingRefs", attrs...)
	v, err := s.inner.HasColumnMappingRefs(ctx, ruleID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) AddColumnMapping(ctx context.Context, m types.ColumnMapping, actor types.Actor) error {
	attrs := []attribute.KeyValue{actorAttr(actor)}
	ctx, span, t := s.op(ctx, "AddColumnMapping", attrs...)
	err := s.inner.AddColumnMapping(ctx, m, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Approvals ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) ReplacePipeline(ctx context.Context, ruleID int64, action types.ActionType, rows []types.Approval, actor types.Actor) error {
	attrs := []attribute.KeyValue{
		ruleAttr(ruleID),
		actorAttr(actor),
		attribute.String("brm.approval.action", string(action)),
	}
	ctx, span, t := s.op(ctx, "ReplacePipeline", attrs...)
	err := s.inner.ReplacePipeline(ctx, ruleID, action, rows, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListApprovals(ctx context.Context, ruleID int64, action types.ActionType) ([]*types.Approval, error) {
	attrs := []attribute.KeyValue{ruleAttr(ruleID)}
	ctx, span, t := s.op(ctx, "ListApprovals", attrs...)
	v, err := s.inner.ListApprovals(ctx, ruleID, action)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Locks ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) AcquireLock(ctx context.Context, ruleID int64, actor types.Actor, ttl time.Duration, force bool) (*types.Lock, error) {
	attrs := []attribute.KeyValue{
		ruleAttr(ruleID),
		actorAttr(actor),
		attribute.Bool("brm.lock.force", force),
	}
	ctx, span, t := s.op(ctx, "AcquireLock", attrs...)
	v, err := s.inner.AcquireLock(ctx, ruleID, actor, ttl, force)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ReleaseLock(ctx context.Context, ruleID int64, actor types.Actor) error {
	attrs := []attribute.KeyValue{ruleAttr(ruleID), actorAttr(actor)}
	ctx, span, t := s.op(ctx, "ReleaseLock", attrs...)
	err := s.inner.ReleaseLock(ctx, ruleID, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) LockOwner(ctx context.Context, ruleID int64) (*types.Lock, error) {
	attrs := []attribute.KeyValue{ruleAttr(ruleID)}
	ctx, span, t := s.op(ctx, "LockOwner", attrs...)
	v, err := s.inner.LockOwner(ctx, ruleID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListLocks(ctx context.Context) ([]*types.Lock, error) {
	ctx, span, t := s.op(ctx, "ListLocks")
	v, err := s.inner.ListLocks(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Schedules ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateSchedule(ctx context.Context, sch *types.Schedule, actor types.Actor) error {
	attrs := []attribute.KeyValue{ruleAttr(sch.RuleID), actorAttr(actor)}
	ctx, span, t := s.op(ctx, "CreateSchedule", attrs...)
	err := s.inner.CreateSchedule(ctx, sch, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListSchedules(ctx context.Context, filter types.ScheduleFilter) ([]*types.Schedule, error) {
	ctx, span, t := s.op(ctx, "ListSchedules")
	v, err := s.inner.ListSchedules(ctx, filter)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) DueSchedules(ctx context.Context, now time.Time) ([]*types.Schedule, error) {
	ctx, span, t := s.op(ctx, "DueSchedules")
	v, err := s.inner.DueSchedules(ctx, now)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ClaimSchedule(ctx context.Context, scheduleID int64, status types.ScheduleStatus) (bool, error) {
	attrs := []attribute.KeyValue{attribute.Int64("brm.schedule.id", scheduleID)}
	ctx, span, t := s.op(ctx, "ClaimSchedule", attrs...)
	v, err := s.inner.ClaimSchedule(ctx, scheduleID, status)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) SetScheduleStatus(ctx context.Context, scheduleID int64, status types.ScheduleStatus) error {
	attrs := []attribute.KeyValue{attribute.Int64("brm.schedule.id", scheduleID)}
	ctx, span, t := s.op(ctx, "SetScheduleStatus", attrs...)
	err := s.inner.SetScheduleStatus(ctx, scheduleID, status)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) CancelSchedule(ctx context.Context, scheduleID int64, actor types.Actor) error {
	attrs := []attribute.KeyValue{attribute.Int64("brm.schedule.id", scheduleID), actorAttr(actor)}
	ctx, span, t := s.op(ctx, "CancelSchedule", attrs...)
	err := s.inner.CancelSchedule(ctx, scheduleID, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Execution logs ──────────────────────────────────────────────────────────

func (s *InstrumentedStore) AppendExecutionLog(ctx context.Context, entry *types.ExecutionLog) error {
	attrs := []attribute.KeyValue{
		ruleAttr(entry.RuleID),
		attribute.Bool("brm.execution.passed", entry.Passed),
	}
	ctx, span, t := s.op(ctx, "AppendExecutionLog", attrs...)
	err := s.inner.AppendExecutionLog(ctx, entry)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListExecutionLogs(ctx context.Context, ruleID int64, limit int) ([]*types.ExecutionLog, error) {
	ctx, span, t := s.op(ctx, "ListExecutionLogs")
	v, err := s.inner.ListExecutionLogs(ctx, ruleID, limit)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Audit ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) ListAudit(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	ctx, span, t := s.op(ctx, "ListAudit")
	v, err := s.inner.ListAudit(ctx, filter)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Data validations ────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateValidation(ctx context.Context, v *types.Validation, actor types.Actor) error {
	attrs := []attribute.KeyValue{
		actorAttr(actor),
		attribute.String("brm.validation.table", v.Table),
	}
	ctx, span, t := s.op(ctx, "CreateValidation", attrs...)
	err := s.inner.CreateValidation(ctx, v, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListValidations(ctx context.Context) ([]*types.Validation, error) {
	ctx, span, t := s.op(ctx, "ListValidations")
	v, err := s.inner.ListValidations(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ValidationsForTable(ctx context.Context, table string) ([]*types.Validation, error) {
	attrs := []attribute.KeyValue{attribute.String("brm.validation.table", table)}
	ctx, span, t := s.op(ctx, "ValidationsForTable", attrs...)
	v, err := s.inner.ValidationsForTable(ctx, table)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) DeleteValidation(ctx context.Context, id int64, actor types.Actor) error {
	attrs := []attribute.KeyValue{actorAttr(actor)}
	ctx, span, t := s.op(ctx, "DeleteValidation", attrs...)
	err := s.inner.DeleteValidation(ctx, id, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) AppendValidationLog(ctx context.Context, entry *types.ValidationLog) error {
	attrs := []attribute.KeyValue{attribute.String("brm.validation.result", entry.Result)}
	ctx, span, t := s.op(ctx, "AppendValidationLog", attrs...)
	err := s.inner.AppendValidationLog(ctx, entry)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListValidationLogs(ctx context.Context, limit int) ([]*types.ValidationLog, error) {
	ctx, span, t := s.op(ctx, "ListValidationLogs")
	v, err := s.inner.ListValidationLogs(ctx, limit)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Groups and approvers ────────────────────────────────────────────────────

func (s *InstrumentedStore) SeedGroups(ctx context.Context, groups []types.Group, approvers map[string][]string) error {
	ctx, span, t := s.op(ctx, "SeedGroups")
	err := s.inner.SeedGroups(ctx, groups, approvers)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) ListGroups(ctx context.Context) ([]*types.Group, error) {
	ctx, span, t := s.op(ctx, "ListGroups")
	v, err := s.inner.ListGroups(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetGroup(ctx context.Context, name string) (*types.Group, error) {
	attrs := []attribute.KeyValue{attribute.String("brm.group", name)}
	ctx, span, t := s.op(ctx, "GetGroup", attrs...)
	v, err := s.inner.GetGroup(ctx, name)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GroupApprovers(ctx context.Context, group string) ([]string, error) {
	attrs := []attribute.KeyValue{attribute.String("brm.group", group)}
	ctx, span, t := s.op(ctx, "GroupApprovers", attrs...)
	v, err := s.inner.GroupApprovers(ctx, group)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) AddGroupApprover(ctx context.Context, group, username string, actor types.Actor) error {
	attrs := []attribute.KeyValue{attribute.String("brm.group", group), actorAttr(actor)}
	ctx, span, t := s.op(ctx, "AddGroupApprover", attrs...)
	err := s.inner.AddGroupApprover(ctx, group, username, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) RemoveGroupApprover(ctx context.Context, group, username string, actor types.Actor) error {
	attrs := []attribute.KeyValue{attribute.String("brm.group", group), actorAttr(actor)}
	ctx, span, t := s.op(ctx, "RemoveGroupApprover", attrs...)
	err := s.inner.RemoveGroupApprover(ctx, group, username, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Decision tables ─────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateDecisionTable(ctx context.Context, dt *types.DecisionTable, actor types.Actor) error {
	attrs := []attribute.KeyValue{actorAttr(actor)}
	ctx, span, t := s.op(ctx, "CreateDecisionTable", attrs...)
	err := s.inner.CreateDecisionTable(ctx, dt, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetDecisionTable(ctx context.Context, id int64) (*types.DecisionTable, error) {
	ctx, span, t := s.op(ctx, "GetDecisionTable")
	v, err := s.inner.GetDecisionTable(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListDecisionTables(ctx context.Context) ([]*types.DecisionTable, error) {
	ctx, span, t := s.op(ctx, "ListDecisionTables")
	v, err := s.inner.ListDecisionTables(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Configuration ───────────────────────────────────────────────────────────

func (s *InstrumentedStore) SetConfig(ctx context.Context, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("brm.config.key", key)}
	ctx, span, t := s.op(ctx, "SetConfig", attrs...)
	err := s.inner.SetConfig(ctx, key, value)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetConfig(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("brm.config.key", key)}
	ctx, span, t := s.op(ctx, "GetConfig", attrs...)
	v, err := s.inner.GetConfig(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetAllConfig(ctx context.Context) (map[string]string, error) {
	ctx, span, t := s.op(ctx, "GetAllConfig")
	v, err := s.inner.GetAllConfig(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) DeleteConfig(ctx context.Context, key string) error {
	attrs := []attribute.KeyValue{attribute.String("brm.config.key", key)}
	ctx, span, t := s.op(ctx, "DeleteConfig", attrs...)
	err := s.inner.DeleteConfig(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Transactions and lifecycle ──────────────────────────────────────────────

func (s *InstrumentedStore) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
