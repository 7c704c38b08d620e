// Package lifecycle drives rules through their create / update / deactivate /
// delete transitions.
//
// Every mutation here is gated: the caller must hold the rule's lock (Admin
// exempt), global rules accept Admin mutations only, and the gated
// transitions open an approval pipeline whose completion handler lands the
// final state. Force variants bypass approval and are Admin-only.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/brmkit/brm/internal/approval"
	"github.com/brmkit/brm/internal/locks"
	"github.com/brmkit/brm/internal/notify"
	"github.com/brmkit/brm/internal/sqlanalyzer"
	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

var (
	// ErrAccessDenied rejects a mutation the actor is not entitled to.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvariantViolation is the base of every structural rejection.
	ErrInvariantViolation = errors.New("lifecycle invariant violation")

	// ErrActiveChildren rejects deactivation while children are ACTIVE.
	ErrActiveChildren = fmt.Errorf("%w: deactivate the ACTIVE children first", ErrInvariantViolation)

	// ErrHasChildren rejects deletion while child rules exist.
	ErrHasChildren = fmt.Errorf("%w: delete or reparent the child rules first", ErrInvariantViolation)

	// ErrHasReferences rejects deletion while column mappings reference
	// the rule.
	ErrHasReferences = fmt.Errorf("%w: column mappings still reference the rule", ErrInvariantViolation)

	// ErrNotInactive rejects a force delete from any status but INACTIVE.
	ErrNotInactive = fmt.Errorf("%w: force delete requires INACTIVE status", ErrInvariantViolation)
)

// Service owns the rule state machine.
type Service struct {
	store     storage.Store
	analyzer  sqlanalyzer.Analyzer
	locks     *locks.Manager
	approvals *approval.Manager
	notifier  notify.Notifier
	logger    *log.Logger
}

// NewService wires the state machine and registers its pipeline completion
// handlers on the approval manager. A nil analyzer gets the regex default, a
// nil notifier discards, a nil logger logs through the default logger.
func NewService(store storage.Store, analyzer sqlanalyzer.Analyzer, lockMgr *locks.Manager, approvals *approval.Manager, notifier notify.Notifier, logger *log.Logger) *Service {
	if analyzer == nil {
		analyzer = sqlanalyzer.NewRegex()
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		store:     store,
		analyzer:  analyzer,
		locks:     lockMgr,
		approvals: approvals,
		notifier:  notifier,
		logger:    logger,
	}
	approvals.RegisterCompletion(types.ActionCreateOrUpdate, s.completeCreateOrUpdate)
	approvals.RegisterCompletion(types.ActionDeactivate, s.completeDeactivate)
	approvals.RegisterCompletion(types.ActionDelete, s.completeDelete)
	return s
}

// Create validates, analyzes and stores a new rule, then opens its approval
// pipeline. Global rules are Admin-only and skip approval entirely; an Admin
// force-activates them when ready.
func (s *Service) Create(ctx context.Context, rule *types.Rule, actor types.Actor) (*types.Rule, error) {
	if rule.IsGlobal && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only Admin may create global rules", ErrAccessDenied)
	}

	analysis, err := s.analyzer.Analyze(ctx, rule.SQL)
	if err != nil {
		return nil, fmt.Errorf("analyzing rule SQL: %w", err)
	}
	rule.OperationKind = operationKind(rule, analysis)
	rule.Status = types.StatusInactive
	rule.ApprovalStatus = types.ApprovalInProgress
	rule.Version = 1

	deps := sqlanalyzer.Dependencies(analysis)
	if err := s.store.CreateRule(ctx, rule, deps, actor); err != nil {
		return nil, err
	}

	if !rule.IsGlobal {
		rows, err := s.approvals.OpenPipeline(ctx, rule.ID, types.ActionCreateOrUpdate, actor)
		if err != nil {
			return nil, fmt.Errorf("opening approval pipeline for rule %d: %w", rule.ID, err)
		}
		s.notifyApprovers(ctx, rule, types.ActionCreateOrUpdate, rows)
	}
	return rule, nil
}

// Update applies allow-listed field changes, re-analyzes the SQL when it
// changed, and restarts the CREATE_OR_UPDATE pipeline. The caller must hold
// the rule's lock unless Admin.
func (s *Service) Update(ctx context.Context, id int64, updates map[string]interface{}, actor types.Actor) (*types.Rule, error) {
	if err := s.locks.Require(ctx, id, actor); err != nil {
		return nil, err
	}
	current, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardGlobal(current, updates, actor); err != nil {
		return nil, err
	}

	var deps []types.TableDependency
	sqlChanged := false
	if raw, ok := updates["rule_sql"]; ok {
		sqlText, _ := raw.(string)
		analysis, err := s.analyzer.Analyze(ctx, sqlText)
		if err != nil {
			return nil, fmt.Errorf("analyzing rule SQL: %w", err)
		}
		probe := *current
		probe.SQL = sqlText
		if dt, ok := updates["decision_table_id"]; ok {
			id64, _ := dt.(int64)
			probe.DecisionTableID = &id64
		}
		updates["operation_type"] = string(operationKind(&probe, analysis))
		deps = sqlanalyzer.Dependencies(analysis)
		sqlChanged = true
	}

	// Every update returns the rule to the approval gate.
	updates["status"] = string(types.StatusInactive)
	updates["approval_status"] = string(types.ApprovalInProgress)

	var updated *types.Rule
	err = s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		var err error
		updated, err = tx.UpdateRuleFields(ctx, id, updates, types.AuditUpdate, actor)
		if err != nil {
			return err
		}
		if sqlChanged {
			return tx.ReplaceTableDeps(ctx, id, deps)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err := s.approvals.OpenPipeline(ctx, id, types.ActionCreateOrUpdate, actor)
	if err != nil {
		return nil, fmt.Errorf("opening approval pipeline for rule %d: %w", id, err)
	}
	s.notifyApprovers(ctx, updated, types.ActionCreateOrUpdate, rows)
	return updated, nil
}

// Deactivate opens the DEACTIVATE pipeline. Rejected while any child is
// ACTIVE; the rule sits in DEACTIVATE_IN_PROGRESS until the pipeline lands.
func (s *Service) Deactivate(ctx context.Context, id int64, actor types.Actor) (*types.Rule, error) {
	if err := s.locks.Require(ctx, id, actor); err != nil {
		return nil, err
	}
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardGlobal(rule, nil, actor); err != nil {
		return nil, err
	}

	children, err := s.store.ListChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.Status == types.StatusActive {
			return nil, fmt.Errorf("rule %d: child %d is ACTIVE: %w", id, child.ID, ErrActiveChildren)
		}
	}

	updated, err := s.store.UpdateRuleFields(ctx, id, map[string]interface{}{
		"status":          string(types.StatusDeactivateInProgress),
		"approval_status": string(types.ApprovalDeactivateInProgress),
	}, types.AuditRequestDeactivate, actor)
	if err != nil {
		return nil, err
	}

	rows, err := s.approvals.OpenPipeline(ctx, id, types.ActionDeactivate, actor)
	if err != nil {
		return nil, fmt.Errorf("opening approval pipeline for rule %d: %w", id, err)
	}
	s.notifyApprovers(ctx, updated, types.ActionDeactivate, rows)
	return updated, nil
}

// Delete opens the DELETE pipeline. Rejected while child rules or column
// mappings still reference the rule. The row is physically removed when the
// pipeline completes.
func (s *Service) Delete(ctx context.Context, id int64, actor types.Actor) (*types.Rule, error) {
	if err := s.locks.Require(ctx, id, actor); err != nil {
		return nil, err
	}
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardGlobal(rule, nil, actor); err != nil {
		return nil, err
	}
	if err := s.guardRemovable(ctx, id); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateRuleFields(ctx, id, map[string]interface{}{
		"status":          string(types.StatusDeleteInProgress),
		"approval_status": string(types.ApprovalDeleteInProgress),
	}, types.AuditRequestDelete, actor)
	if err != nil {
		return nil, err
	}

	rows, err := s.approvals.OpenPipeline(ctx, id, types.ActionDelete, actor)
	if err != nil {
		return nil, fmt.Errorf("opening approval pipeline for rule %d: %w", id, err)
	}
	s.notifyApprovers(ctx, updated, types.ActionDelete, rows)
	return updated, nil
}

// ForceActivate sets (ACTIVE, FORCE_ACTIVATED) regardless of pipeline state.
// Admin only.
func (s *Service) ForceActivate(ctx context.Context, id int64, actor types.Actor) (*types.Rule, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: force activate requires Admin", ErrAccessDenied)
	}
	return s.store.UpdateRuleFields(ctx, id, map[string]interface{}{
		"status":          string(types.StatusActive),
		"approval_status": string(types.ApprovalForceActivated),
	}, types.AuditForceActivate, actor)
}

// ForceDeactivate sets (INACTIVE, FORCE_DEACTIVATED), bypassing approval.
// Admin only.
func (s *Service) ForceDeactivate(ctx context.Context, id int64, actor types.Actor) (*types.Rule, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: force deactivate requires Admin", ErrAccessDenied)
	}
	return s.store.UpdateRuleFields(ctx, id, map[string]interface{}{
		"status":          string(types.StatusInactive),
		"approval_status": string(types.ApprovalForceDeactivated),
	}, types.AuditForceDeactivate, actor)
}

// ForceDelete physically removes an INACTIVE rule with no children and no
// column-mapping references, bypassing approval. Admin only.
func (s *Service) ForceDelete(ctx context.Context, id int64, actor types.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: force delete requires Admin", ErrAccessDenied)
	}
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if rule.Status != types.StatusInactive {
		return fmt.Errorf("rule %d is %s: %w", id, rule.Status, ErrNotInactive)
	}
	if err := s.guardRemovable(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteRule(ctx, id, actor)
}

// guardGlobal rejects non-Admin mutations of global rules, including
// attempts to flip a rule global.
func (s *Service) guardGlobal(rule *types.Rule, updates map[string]interface{}, actor types.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if rule.IsGlobal {
		return fmt.Errorf("%w: rule %d is global; only Admin may mutate it", ErrAccessDenied, rule.ID)
	}
	if raw, ok := updates["is_global"]; ok {
		if flag, _ := raw.(bool); flag {
			return fmt.Errorf("%w: only Admin may mark rules global", ErrAccessDenied)
		}
	}
	return nil
}

// guardRemovable rejects removal while children or column mappings point at
// the rule.
func (s *Service) guardRemovable(ctx context.Context, id int64) error {
	children, err := s.store.ListChildren(ctx, id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("rule %d has %d children: %w", id, len(children), ErrHasChildren)
	}
	referenced, err := s.store.HasColumnMappingRefs(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("rule %d: %w", id, ErrHasReferences)
	}
	return nil
}

// completeCreateOrUpdate lands a fully-approved create or update.
func (s *Service) completeCreateOrUpdate(ctx context.Context, ruleID int64, actor types.Actor) error {
	_, err := s.store.UpdateRuleFields(ctx, ruleID, map[string]interface{}{
		"status":          string(types.StatusActive),
		"approval_status": string(types.ApprovalApproved),
	}, types.AuditStatusChange, actor)
	return err
}

// completeDeactivate lands a fully-approved deactivation.
func (s *Service) completeDeactivate(ctx context.Context, ruleID int64, actor types.Actor) error {
	_, err := s.store.UpdateRuleFields(ctx, ruleID, map[string]interface{}{
		"status":          string(types.StatusInactive),
		"approval_status": string(types.ApprovalApproved),
	}, types.AuditStatusChange, actor)
	return err
}

// completeDelete physically removes the rule once its DELETE pipeline is
// fully approved.
func (s *Service) completeDelete(ctx context.Context, ruleID int64, actor types.Actor) error {
	return s.store.DeleteRule(ctx, ruleID, actor)
}

// operationKind resolves the stored operation kind: decision-table rules are
// tagged DECISION_TABLE, everything else follows the analyzer.
func operationKind(rule *types.Rule, analysis sqlanalyzer.Analysis) types.OperationKind {
	if rule.SQL == "" && rule.DecisionTableID != nil {
		return types.OpDecisionTable
	}
	return analysis.OperationKind
}

// notifyApprovers tells the pipeline's pending approvers that a rule awaits
// them. Delivery failures are logged, never propagated.
func (s *Service) notifyApprovers(ctx context.Context, rule *types.Rule, action types.ActionType, rows []types.Approval) {
	if len(rows) == 0 {
		return
	}
	seen := make(map[string]bool)
	var recipients []string
	for _, row := range rows {
		if seen[row.Username] {
			continue
		}
		seen[row.Username] = true
		recipients = append(recipients, row.Username)
	}
	subject := fmt.Sprintf("Rule %q awaits %s approval", rule.Name, action)
	body := fmt.Sprintf("Rule %d (%s) owned by %s entered the %s approval pipeline.", rule.ID, rule.Name, rule.OwnerGroup, action)
	if err := s.notifier.Notify(ctx, subject, body, recipients); err != nil {
		s.logger.Printf("notify approvers for rule %d: %v", rule.ID, err)
	}
}
