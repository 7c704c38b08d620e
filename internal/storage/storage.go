// Package storage provides shared types for rule persistence.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and value types referenced by both the backend and its
// consumers (lifecycle, approval, executor, cmd/brm).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brmkit/brm/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateName is returned when a rule name collides within its owner group.
var ErrDuplicateName = errors.New("duplicate rule name")

// ErrConstraintViolation is returned when a write violates a schema constraint.
var ErrConstraintViolation = errors.New("constraint violation")

// ErrBackendUnavailable is returned when the backing database cannot be reached.
var ErrBackendUnavailable = errors.New("backend unavailable")

// ErrNoActor is returned when a mutating call carries no actor identity.
// The store refuses unauthenticated mutations.
var ErrNoActor = errors.New("actor identity required")

// LockHeldError reports a failed lock acquisition along with the current
// holder, so callers can surface who to wait for.
type LockHeldError struct {
	RuleID    int64
	Holder    string
	ExpiresAt time.Time
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("rule %d is locked by %s until %s", e.RuleID, e.Holder, e.ExpiresAt.Format(time.RFC3339))
}

// GraphSnapshot is one consistent read of every edge source the dependency
// graph builder consumes. The builder stays pure; the store does the I/O.
type GraphSnapshot struct {
	Rules      []*types.Rule
	Links      []types.GlobalCriticalLink
	Conflicts  []types.Conflict
	Composites []types.CompositeRule
}

// Store is the interface satisfied by *sqlite.Store.
//
// Every mutating call takes the acting identity; the store appends the audit
// entry inside the same transaction as the mutation, so external observers
// see both or neither. Compound operations (create rule + dependency rows +
// audit) are atomic.
type Store interface {
	// Rules
	CreateRule(ctx context.Context, rule *types.Rule, deps []types.TableDependency, actor types.Actor) error
	GetRule(ctx context.Context, id int64) (*types.Rule, error)
	GetRuleByName(ctx context.Context, ownerGroup, name string) (*types.Rule, error)
	ListRules(ctx context.Context, filter types.RuleFilter) ([]*types.Rule, error)
	ListChildren(ctx context.Context, parentID int64) ([]*types.Rule, error)
	// UpdateRuleFields applies an allow-listed column map, bumps VERSION,
	// refreshes UPDATED_BY/UPDATED_AT and LIFECYCLE_STATE, and writes one
	// audit entry with old and new snapshots. Returns the updated rule.
	UpdateRuleFields(ctx context.Context, id int64, updates map[string]interface{}, action types.AuditAction, actor types.Actor) (*types.Rule, error)
	// DeleteRule physically removes the rule and its dependency, approval,
	// lock, conflict, composite and link rows, recording the old snapshot.
	DeleteRule(ctx context.Context, id int64, actor types.Actor) error

	// Analyzed table dependencies
	GetTableDeps(ctx context.Context, ruleID int64) ([]types.TableDependency, error)

	// Graph edge sources
	GraphSnapshot(ctx context.Context) (*GraphSnapshot, error)
	AddConflict(ctx context.Context, c types.Conflict, actor types.Actor) error
	AddGlobalCriticalLink(ctx context.Context, l types.GlobalCriticalLink, actor types.Actor) error
	SetCompositeExpr(ctx context.Context, ruleID int64, expr string, actor types.Actor) error

	// Column mappings (the table may be absent in old deployments; readers
	// degrade to the empty set / "no references")
	ColumnMappingsForRule(ctx context.Context, ruleID int64) ([]types.ColumnMapping, error)
	ListColumnMappings(ctx context.Context) ([]types.ColumnMapping, error)
	HasColumnMappingRefs(ctx context.Context, ruleID int64) (bool, error)
	AddColumnMapping(ctx context.Context, m types.ColumnMapping, actor types.Actor) error

	// Approvals
	ReplacePipeline(ctx context.Context, ruleID int64, action types.ActionType, rows []types.Approval, actor types.Actor) error
	ListApprovals(ctx context.Context, ruleID int64, action types.ActionType) ([]*types.Approval, error)

	// Locks
	// AcquireLock returns *LockHeldError when another user holds a live lock
	// and force is false. Expired locks are treated as absent and lazily
	// deactivated. The check-and-insert is a single transaction.
	AcquireLock(ctx context.Context, ruleID int64, actor types.Actor, ttl time.Duration, force bool) (*types.Lock, error)
	ReleaseLock(ctx context.Context, ruleID int64, actor types.Actor) error
	LockOwner(ctx context.Context, ruleID int64) (*types.Lock, error)
	// ListLocks returns every live, unexpired lock, oldest first.
	ListLocks(ctx context.Context) ([]*types.Lock, error)

	// Schedules
	CreateSchedule(ctx context.Context, s *types.Schedule, actor types.Actor) error
	ListSchedules(ctx context.Context, filter types.ScheduleFilter) ([]*types.Schedule, error)
	DueSchedules(ctx context.Context, now time.Time) ([]*types.Schedule, error)
	// ClaimSchedule flips Scheduled to the given terminal status with a
	// compare-and-set; false means another worker already claimed the row.
	ClaimSchedule(ctx context.Context, scheduleID int64, status types.ScheduleStatus) (bool, error)
	SetScheduleStatus(ctx context.Context, scheduleID int64, status types.ScheduleStatus) error
	CancelSchedule(ctx context.Context, scheduleID int64, actor types.Actor) error

	// Execution logs
	AppendExecutionLog(ctx context.Context, entry *types.ExecutionLog) error
	ListExecutionLogs(ctx context.Context, ruleID int64, limit int) ([]*types.ExecutionLog, error)

	// Audit
	ListAudit(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error)

	// Data validations
	CreateValidation(ctx context.Context, v *types.Validation, actor types.Actor) error
	ListValidations(ctx context.Context) ([]*types.Validation, error)
	ValidationsForTable(ctx context.Context, table string) ([]*types.Validation, error)
	DeleteValidation(ctx context.Context, id int64, actor types.Actor) error
	AppendValidationLog(ctx context.Context, entry *types.ValidationLog) error
	ListValidationLogs(ctx context.Context, limit int) ([]*types.ValidationLog, error)

	// Groups and approvers
	SeedGroups(ctx context.Context, groups []types.Group, approvers map[string][]string) error
	ListGroups(ctx context.Context) ([]*types.Group, error)
	GetGroup(ctx context.Context, name string) (*types.Group, error)
	GroupApprovers(ctx context.Context, group string) ([]string, error)
	AddGroupApprover(ctx context.Context, group, username string, actor types.Actor) error
	RemoveGroupApprover(ctx context.Context, group, username string, actor types.Actor) error

	// Decision tables
	CreateDecisionTable(ctx context.Context, dt *types.DecisionTable, actor types.Actor) error
	GetDecisionTable(ctx context.Context, id int64) (*types.DecisionTable, error)
	ListDecisionTables(ctx context.Context) ([]*types.DecisionTable, error)

	// Configuration
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
	GetAllConfig(ctx context.Context) (map[string]string, error)
	DeleteConfig(ctx context.Context, key string) error

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Close() error
}

// Tx exposes the subset of store operations that execute within a single
// backend transaction. Approval progression uses it to flip an approval row,
// update the rule, and append audit entries atomically.
type Tx interface {
	GetRule(ctx context.Context, id int64) (*types.Rule, error)
	UpdateRuleFields(ctx context.Context, id int64, updates map[string]interface{}, action types.AuditAction, actor types.Actor) (*types.Rule, error)
	DeleteRule(ctx context.Context, id int64, actor types.Actor) error
	ReplaceTableDeps(ctx context.Context, ruleID int64, deps []types.TableDependency) error

	ListApprovals(ctx context.Context, ruleID int64, action types.ActionType) ([]*types.Approval, error)
	// SetApprovalFlag flips exactly one row identified by (rule, action,
	// group, user) and records an APPROVE or REJECT audit entry. Only
	// PENDING rows are eligible.
	SetApprovalFlag(ctx context.Context, ruleID int64, action types.ActionType, group, username string, flag types.ApprovedFlag, actor types.Actor) error
	// MinPendingStage returns the lowest stage index holding a PENDING row,
	// or ok=false when the pipeline is complete.
	MinPendingStage(ctx context.Context, ruleID int64, action types.ActionType) (stage int, ok bool, err error)
}
