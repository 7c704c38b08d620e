package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <rule-id>",
	Short: "Request deactivation of a rule",
	Long: `Open the DEACTIVATE approval pipeline. The rule moves to
DEACTIVATE_IN_PROGRESS and becomes INACTIVE once the pipeline completes.
Rejected while any child rule is still ACTIVE. Requires the edit lock.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])

		updated, err := eng.Lifecycle().Deactivate(rootCtx, id, currentActor())
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(updated)
			return
		}
		fmt.Printf("%s Deactivation requested for rule %d: %s\n", ui.RenderPassIcon(), updated.ID, updated.Name)
		printPipelineSummary(updated.ID, types.ActionDeactivate)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <rule-id>",
	Aliases: []string{"rm"},
	Short:   "Request deletion of a rule",
	Long: `Open the DELETE approval pipeline. The rule moves to DELETE_IN_PROGRESS
and is physically removed once the pipeline completes. Rejected while child
rules or column mappings still reference it. Requires the edit lock.

--force skips approval and removes an INACTIVE rule immediately (Admin only).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])
		force, _ := cmd.Flags().GetBool("force")
		actor := currentActor()

		if force {
			if err := eng.Lifecycle().ForceDelete(rootCtx, id, actor); err != nil {
				FatalError("%v", err)
			}
			if jsonOutput {
				outputJSON(map[string]interface{}{"rule_id": id, "deleted": true})
				return
			}
			fmt.Printf("%s Deleted rule %d\n", ui.RenderPassIcon(), id)
			return
		}

		updated, err := eng.Lifecycle().Delete(rootCtx, id, actor)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(updated)
			return
		}
		fmt.Printf("%s Deletion requested for rule %d: %s\n", ui.RenderPassIcon(), updated.ID, updated.Name)
		printPipelineSummary(updated.ID, types.ActionDelete)
	},
}

var forceActivateCmd = &cobra.Command{
	Use:   "force-activate <rule-id>",
	Short: "Activate a rule immediately, bypassing approval (Admin only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])

		updated, err := eng.Lifecycle().ForceActivate(rootCtx, id, currentActor())
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(updated)
			return
		}
		fmt.Printf("%s Rule %d is now %s (%s)\n", ui.RenderPassIcon(), updated.ID,
			ui.RenderRuleStatus(updated.Status), ui.RenderApprovalStatus(updated.ApprovalStatus))
	},
}

var forceDeactivateCmd = &cobra.Command{
	Use:   "force-deactivate <rule-id>",
	Short: "Deactivate a rule immediately, bypassing approval (Admin only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])

		updated, err := eng.Lifecycle().ForceDeactivate(rootCtx, id, currentActor())
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(updated)
			return
		}
		fmt.Printf("%s Rule %d is now %s (%s)\n", ui.RenderPassIcon(), updated.ID,
			ui.RenderRuleStatus(updated.Status), ui.RenderApprovalStatus(updated.ApprovalStatus))
	},
}

func init() {
	deleteCmd.Flags().Bool("force", false, "Skip approval and delete an INACTIVE rule now (Admin only)")
	rootCmd.AddCommand(deactivateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(forceActivateCmd)
	rootCmd.AddCommand(forceDeactivateCmd)
}
