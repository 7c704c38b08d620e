// Package approval implements the multi-stage approval state machine.
//
// A pipeline is the set of approval rows stamped with one (rule, action)
// pair. Stages advance strictly in order: only rows at the minimum
// unapproved stage are actionable, a single rejection abandons the whole
// pipeline, and full approval dispatches the lifecycle completion handler
// registered for the action type.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// FinalStage is the reserved group name of the closing stage every pipeline
// carries.
const FinalStage = "FINAL"

// DefaultFinalApprover signs off the FINAL stage unless configured otherwise.
const DefaultFinalApprover = "admin"

// DefaultStageOrder is the base stage layout. Business-group stages are
// filtered to the impacted set; FINAL is always emitted last.
var DefaultStageOrder = []string{"BG1", "BG2", "BG3", FinalStage}

var (
	// ErrNoPipeline means no pending approval rows exist for the pair.
	ErrNoPipeline = errors.New("no open approval pipeline")

	// ErrPipelineAbandoned means a rejection already ended the pipeline.
	ErrPipelineAbandoned = errors.New("approval pipeline was abandoned by a rejection")

	// ErrStageGated means an earlier stage still holds pending rows.
	ErrStageGated = errors.New("earlier approval stages are still pending")
)

// CompletionFunc finishes a fully-approved pipeline. Handlers run outside
// the approval transaction and own their own storage transactions.
type CompletionFunc func(ctx context.Context, ruleID int64, actor types.Actor) error

// Manager builds pipelines and advances them row by row.
type Manager struct {
	store         storage.Store
	stageOrder    []string
	finalApprover string
	completions   map[types.ActionType]CompletionFunc
}

// NewManager returns a Manager. A nil stageOrder uses DefaultStageOrder; an
// empty finalApprover uses DefaultFinalApprover.
func NewManager(store storage.Store, stageOrder []string, finalApprover string) *Manager {
	if len(stageOrder) == 0 {
		stageOrder = DefaultStageOrder
	}
	if finalApprover == "" {
		finalApprover = DefaultFinalApprover
	}
	return &Manager{
		store:         store,
		stageOrder:    stageOrder,
		finalApprover: finalApprover,
		completions:   make(map[types.ActionType]CompletionFunc),
	}
}

// RegisterCompletion installs the handler invoked when every stage of an
// action's pipeline is approved. Call during wiring, before serving.
func (m *Manager) RegisterCompletion(action types.ActionType, fn CompletionFunc) {
	m.completions[action] = fn
}

// OpenPipeline computes the impacted business groups, lays out the stages
// and replaces any prior pipeline for (rule, action). Safe to call again:
// re-triggering starts the pipeline over.
func (m *Manager) OpenPipeline(ctx context.Context, ruleID int64, action types.ActionType, actor types.Actor) ([]types.Approval, error) {
	rule, err := m.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	impacted, err := m.impactedGroups(ctx, rule)
	if err != nil {
		return nil, err
	}

	var rows []types.Approval
	stage := 0
	for _, group := range m.stageOrder {
		if group == FinalStage {
			continue
		}
		if !impacted[group] {
			continue
		}
		stage++
		approvers, err := m.store.GroupApprovers(ctx, group)
		if err != nil {
			return nil, err
		}
		for _, username := range approvers {
			rows = append(rows, types.Approval{
				RuleID:     ruleID,
				GroupName:  group,
				Username:   username,
				Stage:      stage,
				ActionType: action,
			})
		}
	}

	// FINAL closes every pipeline with a single configured approver.
	stage++
	rows = append(rows, types.Approval{
		RuleID:     ruleID,
		GroupName:  FinalStage,
		Username:   m.finalApprover,
		Stage:      stage,
		ActionType: action,
	})

	if err := m.store.ReplacePipeline(ctx, ruleID, action, rows, actor); err != nil {
		return nil, err
	}
	return rows, nil
}

// impactedGroups walks hierarchical child edges and column-mapping edges
// (both directions) outward from the rule, collecting owner groups.
func (m *Manager) impactedGroups(ctx context.Context, rule *types.Rule) (map[string]bool, error) {
	snap, err := m.store.GraphSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	mappings, err := m.store.ListColumnMappings(ctx)
	if err != nil {
		return nil, err
	}

	owner := make(map[int64]string, len(snap.Rules))
	adjacent := make(map[int64][]int64)
	for _, r := range snap.Rules {
		owner[r.ID] = r.OwnerGroup
		if r.ParentRuleID != nil {
			adjacent[*r.ParentRuleID] = append(adjacent[*r.ParentRuleID], r.ID)
		}
	}
	for _, cm := range mappings {
		adjacent[cm.RuleID] = append(adjacent[cm.RuleID], cm.TargetRuleID)
		adjacent[cm.TargetRuleID] = append(adjacent[cm.TargetRuleID], cm.RuleID)
	}

	impacted := map[string]bool{rule.OwnerGroup: true}
	seen := map[int64]bool{rule.ID: true}
	queue := []int64{rule.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[id] {
			if seen[next] {
				continue
			}
			seen[next] = true
			if g, ok := owner[next]; ok && g != "" {
				impacted[g] = true
			}
			queue = append(queue, next)
		}
	}
	return impacted, nil
}

// Approve flips the actor's pending row to APPROVED. Only rows at the
// current minimum unapproved stage are actionable. When the flip empties the
// pipeline, the completion handler registered for the action runs after the
// approval transaction commits; completed reports whether that happened.
func (m *Manager) Approve(ctx context.Context, ruleID int64, action types.ActionType, group, username string, actor types.Actor) (completed bool, err error) {
	err = m.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := m.gateRow(ctx, tx, ruleID, action, group, username); err != nil {
			return err
		}
		if err := tx.SetApprovalFlag(ctx, ruleID, action, group, username, types.FlagApproved, actor); err != nil {
			return err
		}
		_, pending, err := tx.MinPendingStage(ctx, ruleID, action)
		if err != nil {
			return err
		}
		if !pending {
			completed = true
			return nil
		}
		// Intermediate approval: reaffirm the gated state. Deactivate and
		// delete pipelines keep their IN_PROGRESS status until completion.
		if action == types.ActionCreateOrUpdate {
			return reaffirmGatedState(ctx, tx, ruleID, actor)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if completed {
		if fn := m.completions[action]; fn != nil {
			if err := fn(ctx, ruleID, actor); err != nil {
				return true, fmt.Errorf("completing %s pipeline for rule %d: %w", action, ruleID, err)
			}
		}
	}
	return completed, nil
}

// Reject flips the actor's pending row to REJECTED and abandons the
// pipeline: the rule drops to (INACTIVE, REJECTED) and the remaining pending
// rows stay on record but are no longer actionable.
func (m *Manager) Reject(ctx context.Context, ruleID int64, action types.ActionType, group, username string, actor types.Actor) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := m.gateRow(ctx, tx, ruleID, action, group, username); err != nil {
			return err
		}
		if err := tx.SetApprovalFlag(ctx, ruleID, action, group, username, types.FlagRejected, actor); err != nil {
			return err
		}
		_, err := tx.UpdateRuleFields(ctx, ruleID, map[string]interface{}{
			"status":          string(types.StatusInactive),
			"approval_status": string(types.ApprovalRejected),
		}, types.AuditStatusChange, actor)
		return err
	})
}

// gateRow validates that (group, username) holds a pending row at the
// currently actionable stage of a live pipeline.
func (m *Manager) gateRow(ctx context.Context, tx storage.Tx, ruleID int64, action types.ActionType, group, username string) error {
	rule, err := tx.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule.ApprovalStatus == types.ApprovalRejected {
		return ErrPipelineAbandoned
	}

	min, pending, err := tx.MinPendingStage(ctx, ruleID, action)
	if err != nil {
		return err
	}
	if !pending {
		return ErrNoPipeline
	}

	rows, err := tx.ListApprovals(ctx, ruleID, action)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.GroupName != group || row.Username != username || row.ApprovedFlag != types.FlagPending {
			continue
		}
		if row.Stage != min {
			return fmt.Errorf("%w: stage %d acts after stage %d", ErrStageGated, row.Stage, min)
		}
		return nil
	}
	return fmt.Errorf("no pending approval for %s/%s on rule %d: %w", group, username, ruleID, storage.ErrNotFound)
}

func reaffirmGatedState(ctx context.Context, tx storage.Tx, ruleID int64, actor types.Actor) error {
	rule, err := tx.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule.Status == types.StatusInactive && rule.ApprovalStatus == types.ApprovalInProgress {
		return nil
	}
	_, err = tx.UpdateRuleFields(ctx, ruleID, map[string]interface{}{
		"status":          string(types.StatusInactive),
		"approval_status": string(types.ApprovalInProgress),
	}, types.AuditStatusChange, actor)
	return err
}

// Pipeline returns the rows of the (rule, action) pipeline ordered by stage.
func (m *Manager) Pipeline(ctx context.Context, ruleID int64, action types.ActionType) ([]*types.Approval, error) {
	return m.store.ListApprovals(ctx, ruleID, action)
}

// CurrentStage returns the minimum unapproved stage of the pipeline, or
// ok=false when nothing is pending.
func (m *Manager) CurrentStage(ctx context.Context, ruleID int64, action types.ActionType) (stage int, ok bool, err error) {
	rows, err := m.store.ListApprovals(ctx, ruleID, action)
	if err != nil {
		return 0, false, err
	}
	for _, r := range rows {
		if r.ApprovedFlag != types.FlagPending {
			continue
		}
		if !ok || r.Stage < stage {
			stage, ok = r.Stage, true
		}
	}
	return stage, ok, nil
}
