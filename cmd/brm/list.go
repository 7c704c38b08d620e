package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List rules",
	Run: func(cmd *cobra.Command, args []string) {
		filter := buildRuleFilter(cmd)

		rules, err := eng.Store().ListRules(rootCtx, filter)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(rules)
			return
		}
		if len(rules) == 0 {
			fmt.Println("No rules found.")
			return
		}
		var buf strings.Builder
		fmt.Fprintf(&buf, "%4s  %-22s %-22s %s\n", "ID", "STATUS", "APPROVAL", "NAME")
		for _, r := range rules {
			meta := fmt.Sprintf("(%s, v%d)", r.OwnerGroup, r.Version)
			flags := ruleFlagTags(r)
			fmt.Fprintf(&buf, "%4d  %s %s %s %s\n",
				r.ID, ruleStatusCell(r.Status), approvalStatusCell(r.ApprovalStatus),
				ui.TruncateSimple(r.Name, 48), ui.RenderMuted(meta+flags))
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		if err := ui.ToPager(buf.String(), noPager); err != nil {
			FatalError("pager failed: %v", err)
		}
	},
}

// buildRuleFilter assembles the store filter from the list flags.
func buildRuleFilter(cmd *cobra.Command) types.RuleFilter {
	var filter types.RuleFilter
	filter.OwnerGroup, _ = cmd.Flags().GetString("owner")
	filter.NameContains, _ = cmd.Flags().GetString("name")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.CriticalOnly, _ = cmd.Flags().GetBool("critical")

	if cmd.Flags().Changed("status") {
		raw, _ := cmd.Flags().GetString("status")
		status := types.RuleStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			FatalError("invalid status %q (INACTIVE|ACTIVE|DEACTIVATE_IN_PROGRESS|DELETE_IN_PROGRESS)", raw)
		}
		filter.Status = &status
	}
	if cmd.Flags().Changed("approval") {
		raw, _ := cmd.Flags().GetString("approval")
		status := types.ApprovalStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			FatalError("invalid approval status %q", raw)
		}
		filter.ApprovalStatus = &status
	}
	if cmd.Flags().Changed("global") {
		global, _ := cmd.Flags().GetBool("global")
		filter.IsGlobal = &global
	}
	if id := optionalInt64Flag(cmd, "parent"); id != nil {
		filter.ParentRuleID = id
	}
	return filter
}

// ruleStatusCell pads before styling so ANSI codes stay out of the width.
func ruleStatusCell(s types.RuleStatus) string {
	return ui.RuleStatusStyle(s).Render(fmt.Sprintf("%-22s", string(s)))
}

func approvalStatusCell(s types.ApprovalStatus) string {
	return ui.ApprovalStatusStyle(s).Render(fmt.Sprintf("%-22s", string(s)))
}

// ruleFlagTags renders the trailing marker list for global/critical rules.
func ruleFlagTags(r *types.Rule) string {
	var tags []string
	if r.IsGlobal {
		tags = append(tags, "global")
	}
	if r.CriticalRule {
		tags = append(tags, "critical")
	}
	if len(tags) == 0 {
		return ""
	}
	return " [" + strings.Join(tags, ",") + "]"
}

func init() {
	listCmd.Flags().String("owner", "", "Filter by owner business group")
	listCmd.Flags().String("status", "", "Filter by status (INACTIVE|ACTIVE|DEACTIVATE_IN_PROGRESS|DELETE_IN_PROGRESS)")
	listCmd.Flags().String("approval", "", "Filter by approval status")
	listCmd.Flags().Bool("global", false, "Filter by the global flag")
	listCmd.Flags().Bool("critical", false, "Only critical rules")
	listCmd.Flags().Int64("parent", 0, "Only children of this rule")
	listCmd.Flags().String("name", "", "Filter by substring of the rule name")
	listCmd.Flags().Int("limit", 0, "Maximum rows (0: no limit)")
	listCmd.Flags().Bool("no-pager", false, "Print directly instead of paging long output")
	rootCmd.AddCommand(listCmd)
}
