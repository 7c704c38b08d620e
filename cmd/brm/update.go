package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var updateCmd = &cobra.Command{
	Use:   "update <rule-id>",
	Short: "Update a rule and restart its approval pipeline",
	Long: `Update a locked rule. Changed SQL is re-analyzed for dependencies; every
update bumps the version, returns the rule to INACTIVE and reopens the
CREATE_OR_UPDATE approval pipeline. The caller must hold the rule's edit lock
(Admin exempt).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])
		updates := buildRuleUpdates(cmd)
		if len(updates) == 0 {
			FatalError("nothing to update (see 'brm update --help' for the editable fields)")
		}

		updated, err := eng.Lifecycle().Update(rootCtx, id, updates, currentActor())
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(updated)
			return
		}
		fmt.Printf("%s Updated rule %d: %s (v%d)\n", ui.RenderPassIcon(), updated.ID, updated.Name, updated.Version)
		fmt.Printf("  Status: %s  Approval: %s\n",
			ui.RenderRuleStatus(updated.Status), ui.RenderApprovalStatus(updated.ApprovalStatus))
		printPipelineSummary(updated.ID, types.ActionCreateOrUpdate)
	},
}

// buildRuleUpdates converts explicitly-set flags into the allow-listed
// update map the store applies.
func buildRuleUpdates(cmd *cobra.Command) map[string]interface{} {
	updates := make(map[string]interface{})

	if cmd.Flags().Changed("name") {
		v, _ := cmd.Flags().GetString("name")
		updates["rule_name"] = v
	}
	if cmd.Flags().Changed("sql") {
		v, _ := cmd.Flags().GetString("sql")
		updates["rule_sql"] = v
	}
	if cmd.Flags().Changed("sql-file") {
		if cmd.Flags().Changed("sql") {
			FatalError("cannot specify both --sql and --sql-file")
		}
		path, _ := cmd.Flags().GetString("sql-file")
		data, err := os.ReadFile(path)
		if err != nil {
			FatalError("failed to read %s: %v", path, err)
		}
		updates["rule_sql"] = strings.TrimSpace(string(data))
	}
	if cmd.Flags().Changed("type") {
		v, _ := cmd.Flags().GetString("type")
		updates["rule_type"] = v
	}
	if cmd.Flags().Changed("owner") {
		v, _ := cmd.Flags().GetString("owner")
		updates["owner_group"] = v
	}
	if cmd.Flags().Changed("cdc") {
		v, _ := cmd.Flags().GetString("cdc")
		updates["cdc_type"] = v
	}
	if cmd.Flags().Changed("global") {
		v, _ := cmd.Flags().GetBool("global")
		updates["is_global"] = v
	}
	if cmd.Flags().Changed("critical") {
		v, _ := cmd.Flags().GetBool("critical")
		updates["critical_rule"] = v
	}
	if cmd.Flags().Changed("scope") {
		raw, _ := cmd.Flags().GetString("scope")
		scope := types.CriticalScope(strings.ToUpper(raw))
		if !scope.IsValid() {
			FatalError("invalid scope %q (NONE|GROUP|CLUSTER|GLOBAL)", raw)
		}
		updates["critical_scope"] = string(scope)
	}
	if id := optionalInt64Flag(cmd, "parent"); id != nil {
		updates["parent_rule_id"] = *id
	}
	if id := optionalInt64Flag(cmd, "group-id"); id != nil {
		updates["group_id"] = *id
	}
	if id := optionalInt64Flag(cmd, "decision-table"); id != nil {
		updates["decision_table_id"] = *id
	}
	if t := optionalTimeFlag(cmd, "effective-start"); t != nil {
		updates["effective_start_date"] = *t
	}
	if t := optionalTimeFlag(cmd, "effective-end"); t != nil {
		updates["effective_end_date"] = *t
	}
	return updates
}

func init() {
	updateCmd.Flags().String("name", "", "New rule name")
	updateCmd.Flags().String("sql", "", "New rule SQL")
	updateCmd.Flags().String("sql-file", "", "Read new rule SQL from a file")
	updateCmd.Flags().StringP("type", "t", "", "New rule type tag")
	updateCmd.Flags().String("owner", "", "New owner business group")
	updateCmd.Flags().String("cdc", "", "New CDC tag")
	updateCmd.Flags().Bool("global", false, "Set or clear the global flag (Admin only)")
	updateCmd.Flags().Bool("critical", false, "Set or clear the critical flag")
	updateCmd.Flags().String("scope", "", "New critical scope (NONE|GROUP|CLUSTER|GLOBAL)")
	updateCmd.Flags().Int64("parent", 0, "New parent rule ID")
	updateCmd.Flags().Int64("group-id", 0, "New execution group ID")
	updateCmd.Flags().Int64("decision-table", 0, "New decision table ID")
	updateCmd.Flags().String("effective-start", "", "New effective window start")
	updateCmd.Flags().String("effective-end", "", "New effective window end")
	rootCmd.AddCommand(updateCmd)
}
