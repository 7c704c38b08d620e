package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var approveCmd = &cobra.Command{
	Use:   "approve <rule-id>",
	Short: "Approve your pending row in a rule's approval pipeline",
	Long: `Record an approval. Only rows at the pipeline's current stage are
actionable; later stages unlock as earlier ones complete. When the final row
is approved the pipeline's action lands: creates and updates activate the
rule, deactivations retire it, deletions remove it.

The (group, user) row defaults to your own identity; Admins may record on
behalf of another approver with --as-group/--as-user.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])
		action := actionFlag(cmd)
		actor := currentActor()
		group, username := approvalRow(cmd, actor)

		completed, err := eng.Approvals().Approve(rootCtx, id, action, group, username, actor)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"rule_id":   id,
				"action":    action,
				"group":     group,
				"username":  username,
				"completed": completed,
			})
			return
		}
		fmt.Printf("%s Approved rule %d (%s) as %s/%s\n", ui.RenderPassIcon(), id, action, group, username)
		if completed {
			switch action {
			case types.ActionDelete:
				fmt.Println("  Pipeline complete: rule deleted.")
			case types.ActionDeactivate:
				fmt.Println("  Pipeline complete: rule is now INACTIVE.")
			default:
				fmt.Println("  Pipeline complete: rule is now ACTIVE.")
			}
			return
		}
		if stage, ok, err := eng.Approvals().CurrentStage(rootCtx, id, action); err == nil && ok {
			fmt.Printf("  Waiting on stage %d.\n", stage)
		}
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <rule-id>",
	Short: "Reject a rule, abandoning its approval pipeline",
	Long: `Record a rejection. A single rejection abandons the whole pipeline: the
rule's approval status becomes REJECTED and remaining rows stay untouched.
Re-trigger the action (for instance 'brm update') to open a fresh pipeline.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])
		action := actionFlag(cmd)
		actor := currentActor()
		group, username := approvalRow(cmd, actor)

		if err := eng.Approvals().Reject(rootCtx, id, action, group, username, actor); err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"rule_id":  id,
				"action":   action,
				"group":    group,
				"username": username,
				"rejected": true,
			})
			return
		}
		fmt.Printf("%s Rejected rule %d (%s) as %s/%s\n", ui.RenderFailIcon(), id, action, group, username)
		fmt.Println("  Pipeline abandoned.")
	},
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals <rule-id>",
	Short: "Show a rule's approval pipelines",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])

		pipelines := make(map[types.ActionType][]*types.Approval)
		for _, action := range []types.ActionType{types.ActionCreateOrUpdate, types.ActionDeactivate, types.ActionDelete} {
			rows, err := eng.Approvals().Pipeline(rootCtx, id, action)
			if err != nil {
				FatalError("%v", err)
			}
			if len(rows) > 0 {
				pipelines[action] = rows
			}
		}

		if jsonOutput {
			outputJSON(pipelines)
			return
		}
		if len(pipelines) == 0 {
			fmt.Printf("No approval pipelines for rule %d.\n", id)
			return
		}
		for _, action := range []types.ActionType{types.ActionCreateOrUpdate, types.ActionDeactivate, types.ActionDelete} {
			rows := pipelines[action]
			if len(rows) == 0 {
				continue
			}
			fmt.Println(ui.RenderCategory(fmt.Sprintf("%s:", action)))
			for _, row := range rows {
				fmt.Printf("  %s stage %d  %s/%s%s\n",
					approvalIcon(row.ApprovedFlag), row.Stage, row.GroupName, row.Username, approvalWhen(row))
			}
			if stage, ok, err := eng.Approvals().CurrentStage(rootCtx, id, action); err == nil && ok {
				fmt.Printf("  %s\n", ui.RenderMuted(fmt.Sprintf("current stage: %d", stage)))
			}
		}
	},
}

// actionFlag parses --action, defaulting to CREATE_OR_UPDATE.
func actionFlag(cmd *cobra.Command) types.ActionType {
	raw, _ := cmd.Flags().GetString("action")
	action := types.ActionType(strings.ToUpper(raw))
	if !action.IsValid() {
		FatalError("invalid action %q (CREATE_OR_UPDATE|DEACTIVATE|DELETE)", raw)
	}
	return action
}

// approvalRow resolves which (group, user) pipeline row the verdict lands on.
func approvalRow(cmd *cobra.Command, actor types.Actor) (string, string) {
	group, _ := cmd.Flags().GetString("as-group")
	username, _ := cmd.Flags().GetString("as-user")
	if group == "" {
		group = actor.Group
	}
	if username == "" {
		username = actor.UserID
	}
	if group == "" {
		FatalErrorWithHint("approval group required", "Pass --group/--as-group or set BRM_GROUP")
	}
	return group, username
}

func registerVerdictFlags(cmd *cobra.Command) {
	cmd.Flags().String("action", string(types.ActionCreateOrUpdate), "Pipeline to act on (CREATE_OR_UPDATE|DEACTIVATE|DELETE)")
	cmd.Flags().String("as-group", "", "Record on the given group's row (defaults to your group)")
	cmd.Flags().String("as-user", "", "Record on the given approver's row (defaults to you)")
}

func init() {
	registerVerdictFlags(approveCmd)
	registerVerdictFlags(rejectCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(approvalsCmd)
}
