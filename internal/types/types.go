// Package types defines core data structures for the brm rule engine.
package types

import (
	"fmt"
	"time"
)

// AdminGroup is the business group whose members may bypass locks, mutate
// global rules, and force lifecycle transitions.
const AdminGroup = "Admin"

// Actor identifies the user performing a mutation. The core never
// authenticates; it only authorizes based on the supplied pair.
type Actor struct {
	UserID string `json:"user_id"`
	Group  string `json:"group"`
}

// IsAdmin reports whether the actor belongs to the Admin group.
func (a Actor) IsAdmin() bool {
	return a.Group == AdminGroup
}

// IsZero reports whether no identity was supplied.
func (a Actor) IsZero() bool {
	return a.UserID == ""
}

func (a Actor) String() string {
	if a.Group == "" {
		return a.UserID
	}
	return a.UserID + " (" + a.Group + ")"
}

// Rule is a named, versioned unit of SQL plus metadata that can be executed
// against the backing database.
type Rule struct {
	ID              int64          `json:"rule_id"`
	Name            string         `json:"rule_name"`
	SQL             string         `json:"rule_sql,omitempty"`
	RuleType        string         `json:"rule_type,omitempty"`
	OwnerGroup      string         `json:"owner_group"`
	ParentRuleID    *int64         `json:"parent_rule_id,omitempty"`
	GroupID         *int64         `json:"group_id,omitempty"`
	EffectiveStart  *time.Time     `json:"effective_start,omitempty"`
	EffectiveEnd    *time.Time     `json:"effective_end,omitempty"`
	OperationKind   OperationKind  `json:"operation_kind,omitempty"`
	IsGlobal        bool           `json:"is_global,omitempty"`
	CriticalRule    bool           `json:"critical_rule,omitempty"`
	CriticalScope   CriticalScope  `json:"critical_scope,omitempty"`
	CDCType         string         `json:"cdc_type,omitempty"` // informational tag, not interpreted by the core
	Status          RuleStatus     `json:"status"`
	ApprovalStatus  ApprovalStatus `json:"approval_status"`
	LifecycleState  string         `json:"lifecycle_state,omitempty"` // advisory mirror of status x approval_status
	Version         int64          `json:"version"`
	DecisionTableID *int64         `json:"decision_table_id,omitempty"`
	CreatedBy       string         `json:"created_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedBy       string         `json:"updated_by,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Validate checks that the rule carries valid field values.
func (r *Rule) Validate() error {
	if len(r.Name) == 0 {
		return fmt.Errorf("rule name is required")
	}
	if len(r.Name) > 200 {
		return fmt.Errorf("rule name must be 200 characters or less (got %d)", len(r.Name))
	}
	if r.OwnerGroup == "" {
		return fmt.Errorf("owner group is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if !r.ApprovalStatus.IsValid() {
		return fmt.Errorf("invalid approval status: %s", r.ApprovalStatus)
	}
	if !r.CriticalScope.IsValid() {
		return fmt.Errorf("invalid critical scope: %s", r.CriticalScope)
	}
	if r.OperationKind != "" && !r.OperationKind.IsValid() {
		return fmt.Errorf("invalid operation kind: %s", r.OperationKind)
	}
	if r.EffectiveStart != nil && r.EffectiveEnd != nil && r.EffectiveEnd.Before(*r.EffectiveStart) {
		return fmt.Errorf("effective end precedes effective start")
	}
	return nil
}

// SetDefaults applies default values for fields omitted on create.
func (r *Rule) SetDefaults() {
	if r.Status == "" {
		r.Status = StatusInactive
	}
	if r.ApprovalStatus == "" {
		r.ApprovalStatus = ApprovalInProgress
	}
	if r.CriticalScope == "" {
		r.CriticalScope = ScopeNone
	}
	if r.Version == 0 {
		r.Version = 1
	}
}

// IsCritical reports whether a failure of this rule gates its descendants.
// Global rules are implicitly critical; either way the scope must not be NONE.
func (r *Rule) IsCritical() bool {
	return (r.CriticalRule || r.IsGlobal) && r.CriticalScope != ScopeNone
}

// RuleStatus represents the current state of a rule.
type RuleStatus string

// Rule status constants
const (
	StatusInactive             RuleStatus = "INACTIVE"
	StatusActive               RuleStatus = "ACTIVE"
	StatusDeactivateInProgress RuleStatus = "DEACTIVATE_IN_PROGRESS"
	StatusDeleteInProgress     RuleStatus = "DELETE_IN_PROGRESS"
)

// IsValid checks if the status value is valid.
func (s RuleStatus) IsValid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusDeactivateInProgress, StatusDeleteInProgress:
		return true
	}
	return false
}

// ApprovalStatus tracks where a rule stands relative to its approval pipeline.
type ApprovalStatus string

// Approval status constants
const (
	ApprovalInProgress           ApprovalStatus = "APPROVAL_IN_PROGRESS"
	ApprovalApproved             ApprovalStatus = "APPROVED"
	ApprovalRejected             ApprovalStatus = "REJECTED"
	ApprovalForceActivated       ApprovalStatus = "FORCE_ACTIVATED"
	ApprovalForceDeactivated     ApprovalStatus = "FORCE_DEACTIVATED"
	ApprovalDeactivateInProgress ApprovalStatus = "DEACTIVATE_IN_PROGRESS"
	ApprovalDeleteInProgress     ApprovalStatus = "DELETE_IN_PROGRESS"
)

// IsValid checks if the approval status value is valid.
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalInProgress, ApprovalApproved, ApprovalRejected, ApprovalForceActivated,
		ApprovalForceDeactivated, ApprovalDeactivateInProgress, ApprovalDeleteInProgress:
		return true
	}
	return false
}

// Lifecycle state constants (advisory, derived from status x approval_status).
const (
	LifecycleUnderApproval     = "UNDER_APPROVAL"
	LifecycleActive            = "ACTIVE"
	LifecycleInactive          = "INACTIVE"
	LifecycleDeactivatePending = "DEACTIVATE_PENDING"
	LifecycleDeletePending     = "DELETE_PENDING"
)

// DeriveLifecycleState computes the advisory lifecycle_state mirror from the
// two authoritative state columns.
func DeriveLifecycleState(status RuleStatus, approval ApprovalStatus) string {
	switch status {
	case StatusActive:
		return LifecycleActive
	case StatusDeactivateInProgress:
		return LifecycleDeactivatePending
	case StatusDeleteInProgress:
		return LifecycleDeletePending
	}
	if approval == ApprovalInProgress {
		return LifecycleUnderApproval
	}
	return LifecycleInactive
}

// CriticalScope bounds how far a critical failure propagates.
type CriticalScope string

// Critical scope constants
const (
	ScopeNone    CriticalScope = "NONE"
	ScopeGroup   CriticalScope = "GROUP"
	ScopeCluster CriticalScope = "CLUSTER"
	ScopeGlobal  CriticalScope = "GLOBAL"
)

// IsValid checks if the critical scope value is valid.
func (s CriticalScope) IsValid() bool {
	switch s {
	case ScopeNone, ScopeGroup, ScopeCluster, ScopeGlobal:
		return true
	}
	return false
}

// OperationKind classifies a rule's SQL by its leading statement keyword.
type OperationKind string

// Operation kind constants
const (
	OpSelect        OperationKind = "SELECT"
	OpInsert        OperationKind = "INSERT"
	OpUpdate        OperationKind = "UPDATE"
	OpDelete        OperationKind = "DELETE"
	OpDecisionTable OperationKind = "DECISION_TABLE"
	OpOther         OperationKind = "OTHER"
)

// IsValid checks if the operation kind value is valid.
func (k OperationKind) IsValid() bool {
	switch k {
	case OpSelect, OpInsert, OpUpdate, OpDelete, OpDecisionTable, OpOther:
		return true
	}
	return false
}

// IsWrite reports whether the operation mutates its target tables.
func (k OperationKind) IsWrite() bool {
	switch k {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ColumnOp flags whether a dependency row records a read or a write.
type ColumnOp string

// Column op constants
const (
	ColumnRead  ColumnOp = "READ"
	ColumnWrite ColumnOp = "WRITE"
)

// IsValid checks if the column op value is valid.
func (o ColumnOp) IsValid() bool {
	return o == ColumnRead || o == ColumnWrite
}

// TableDependency is one analyzed table/column reference of a rule's SQL.
type TableDependency struct {
	RuleID   int64    `json:"rule_id"`
	Database string   `json:"database_name,omitempty"`
	Table    string   `json:"table_name"`
	Column   string   `json:"column_name,omitempty"`
	Op       ColumnOp `json:"column_op"`
}

// ActionType tags an approval pipeline with the lifecycle operation that
// opened it. Exactly one in-flight pipeline may exist per (rule, action).
type ActionType string

// Action type constants
const (
	ActionCreateOrUpdate ActionType = "CREATE_OR_UPDATE"
	ActionDeactivate     ActionType = "DEACTIVATE"
	ActionDelete         ActionType = "DELETE"
)

// IsValid checks if the action type value is valid.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionCreateOrUpdate, ActionDeactivate, ActionDelete:
		return true
	}
	return false
}

// ApprovedFlag is the wire value of one approver's verdict.
type ApprovedFlag int

// Approved flag constants ({0,1,2} on the wire)
const (
	FlagPending  ApprovedFlag = 0
	FlagApproved ApprovedFlag = 1
	FlagRejected ApprovedFlag = 2
)

// IsValid checks if the approved flag value is valid.
func (f ApprovedFlag) IsValid() bool {
	return f == FlagPending || f == FlagApproved || f == FlagRejected
}

// Approval is one (group, approver) record of an approval pipeline stage.
type Approval struct {
	RuleID       int64        `json:"rule_id"`
	GroupName    string       `json:"group_name"`
	Username     string       `json:"username"`
	ApprovedFlag ApprovedFlag `json:"approved_flag"`
	Stage        int          `json:"approval_stage"`
	ActionType   ActionType   `json:"action_type"`
	ApprovedAt   *time.Time   `json:"approved_at,omitempty"`
}

// Lock is a pessimistic claim on a rule preventing concurrent edits.
// At most one active, non-expired lock exists per rule.
type Lock struct {
	RuleID    int64     `json:"rule_id"`
	LockedBy  string    `json:"locked_by"`
	LockedAt  time.Time `json:"lock_timestamp"`
	ExpiresAt time.Time `json:"expiry_timestamp"`
	Force     bool      `json:"force_lock,omitempty"`
	Active    bool      `json:"active_lock"`
}

// Expired reports whether the lock's TTL has lapsed as of now.
func (l *Lock) Expired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}

// ScheduleStatus tracks a schedule row through its single firing.
type ScheduleStatus string

// Schedule status constants
const (
	ScheduleScheduled ScheduleStatus = "Scheduled"
	ScheduleExecuted  ScheduleStatus = "Executed"
	ScheduleFailed    ScheduleStatus = "Failed"
	ScheduleCancelled ScheduleStatus = "Cancelled"
)

// IsValid checks if the schedule status value is valid.
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleScheduled, ScheduleExecuted, ScheduleFailed, ScheduleCancelled:
		return true
	}
	return false
}

// Schedule fires one rule execution at a wall-clock time.
type Schedule struct {
	ID                 int64          `json:"schedule_id"`
	RuleID             int64          `json:"rule_id"`
	FireAt             time.Time      `json:"schedule_time"`
	Status             ScheduleStatus `json:"status"`
	RunDataValidations bool           `json:"run_data_validations"`
	CreatedAt          time.Time      `json:"created_at"`
}

// ExecutionLog is one append-only record of a rule execution outcome.
type ExecutionLog struct {
	ID          int64     `json:"execution_id"`
	RuleID      int64     `json:"rule_id"`
	ExecutedAt  time.Time `json:"execution_timestamp"`
	Passed      bool      `json:"pass_flag"`
	Message     string    `json:"message,omitempty"`
	RecordCount int64     `json:"record_count"`
	ElapsedMS   int64     `json:"execution_time_ms"`
}

// AuditAction categorizes audit trail entries.
type AuditAction string

// Audit action constants
const (
	AuditInsert            AuditAction = "INSERT"
	AuditUpdate            AuditAction = "UPDATE"
	AuditDelete            AuditAction = "DELETE"
	AuditStatusChange      AuditAction = "STATUS_CHANGE"
	AuditApprove           AuditAction = "APPROVE"
	AuditReject            AuditAction = "REJECT"
	AuditRequestDeactivate AuditAction = "REQUEST_DEACTIVATE"
	AuditRequestDelete     AuditAction = "REQUEST_DELETE"
	AuditForceActivate     AuditAction = "FORCE_ACTIVATE"
	AuditForceDeactivate   AuditAction = "FORCE_DEACTIVATE"
)

// AuditEntry is an immutable record of a state transition.
type AuditEntry struct {
	ID        int64       `json:"audit_id"`
	Action    AuditAction `json:"action"`
	TableName string      `json:"table_name"`
	RecordID  int64       `json:"record_id"`
	Actor     string      `json:"action_by"`
	OldData   string      `json:"old_data,omitempty"` // JSON snapshot before the mutation
	NewData   string      `json:"new_data,omitempty"` // JSON snapshot after the mutation
	Timestamp time.Time   `json:"action_timestamp"`
}

// Audited table names, recorded verbatim in BRM_AUDIT_LOG.TABLE_NAME.
const (
	TableRules          = "BRM_RULES"
	TableApprovals      = "BRM_RULE_APPROVALS"
	TableLocks          = "BRM_RULE_LOCKS"
	TableSchedules      = "RULE_SCHEDULES"
	TableValidations    = "DATA_VALIDATIONS"
	TableGroupApprovers = "BRM_GROUP_APPROVERS"
)

// Conflict is a pairwise ordering constraint between two rules. The
// higher-priority rule gates the other in the execution graph.
type Conflict struct {
	RuleID1  int64 `json:"rule_id1"`
	RuleID2  int64 `json:"rule_id2"`
	Priority int   `json:"priority"` // 1 = rule1 gates rule2, 2 = rule2 gates rule1, else rule1 gates rule2
}

// CompositeRule references other rules by Rule<digits> tokens inside a
// logic expression; each referenced rule becomes a parent of the composite.
type CompositeRule struct {
	RuleID    int64  `json:"rule_id"`
	LogicExpr string `json:"logic_expr"`
}

// GlobalCriticalLink is an explicit gating edge from a global-critical rule
// to a target rule.
type GlobalCriticalLink struct {
	GCRRuleID    int64 `json:"gcr_rule_id"`
	TargetRuleID int64 `json:"target_rule_id"`
}

// ColumnMapping links a column of one rule's output to another rule's input.
// The mapping store may be absent in old deployments; readers degrade to the
// empty set.
type ColumnMapping struct {
	ID           int64  `json:"mapping_id"`
	RuleID       int64  `json:"rule_id"`
	TargetRuleID int64  `json:"target_rule_id"`
	SourceColumn string `json:"source_column,omitempty"`
	TargetColumn string `json:"target_column,omitempty"`
}

// Group is a business group that owns rules and supplies approvers.
type Group struct {
	Name        string `json:"group_name"`
	Description string `json:"description,omitempty"`
	Email       string `json:"email,omitempty"`
}

// DecisionTable is a named decision-table reference a rule may carry in
// place of SQL text.
type DecisionTable struct {
	ID          int64  `json:"decision_table_id"`
	TableName   string `json:"table_name"`
	Description string `json:"description,omitempty"`
}

// ValidationType names a column-level data check.
type ValidationType string

// Validation type constants
const (
	ValidationNotNull    ValidationType = "NOT NULL"
	ValidationRange      ValidationType = "RANGE"
	ValidationRegex      ValidationType = "REGEX"
	ValidationForeignKey ValidationType = "FOREIGN_KEY"
)

// IsValid checks if the validation type value is valid.
func (v ValidationType) IsValid() bool {
	switch v {
	case ValidationNotNull, ValidationRange, ValidationRegex, ValidationForeignKey:
		return true
	}
	return false
}

// Validation is one configured column-level check.
type Validation struct {
	ID        int64          `json:"validation_id"`
	Table     string         `json:"table_name"`
	Column    string         `json:"column_name"`
	Type      ValidationType `json:"validation_type"`
	Params    string         `json:"params,omitempty"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validation results on the wire.
const (
	ValidationPass = "PASS"
	ValidationFail = "FAIL"
)

// ValidationLog is one append-only record of a validation run.
type ValidationLog struct {
	ID           int64          `json:"log_id"`
	ValidationID int64          `json:"validation_id"`
	Table        string         `json:"table_name"`
	Column       string         `json:"column_name"`
	Type         ValidationType `json:"validation_type"`
	Params       string         `json:"params,omitempty"`
	Result       string         `json:"result"` // PASS or FAIL
	Message      string         `json:"message,omitempty"`
	ValidatedAt  time.Time      `json:"validated_at"`
}

// RuleFilter is used to filter rule queries.
type RuleFilter struct {
	OwnerGroup     string
	Status         *RuleStatus
	ApprovalStatus *ApprovalStatus
	IsGlobal       *bool
	CriticalOnly   bool
	ParentRuleID   *int64
	NameContains   string
	Limit          int
}

// AuditFilter is used to filter audit log reads.
type AuditFilter struct {
	Actor     string
	Action    AuditAction
	TableName string
	RecordID  *int64
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// ScheduleFilter is used to filter schedule queries.
type ScheduleFilter struct {
	RuleID *int64
	Status *ScheduleStatus
	Limit  int
}
