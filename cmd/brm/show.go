package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <rule-id>",
	Aliases: []string{"get"},
	Short:   "Show a rule with its dependencies, lock, approvals and recent runs",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])
		full, _ := cmd.Flags().GetBool("full")

		rule, err := eng.Store().GetRule(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}
		deps, err := eng.Store().GetTableDeps(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}
		lock, err := eng.Locks().Owner(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}
		executions, err := eng.Store().ListExecutionLogs(rootCtx, id, 5)
		if err != nil {
			FatalError("%v", err)
		}
		children, err := eng.Store().ListChildren(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}

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
			outputJSON(map[string]interface{}{
				"rule":         rule,
				"dependencies": deps,
				"lock":         lock,
				"approvals":    pipelines,
				"executions":   executions,
				"children":     children,
			})
			return
		}

		fmt.Printf("%s %d: %s (v%d)\n", ui.RenderCategory("Rule"), rule.ID, rule.Name, rule.Version)
		fmt.Println(ui.RenderSeparator())
		fmt.Printf("  Owner: %s", rule.OwnerGroup)
		if rule.RuleType != "" {
			fmt.Printf("   Type: %s", rule.RuleType)
		}
		if rule.OperationKind != "" {
			fmt.Printf("   Kind: %s", rule.OperationKind)
		}
		fmt.Println()
		fmt.Printf("  Status: %s   Approval: %s\n",
			ui.RenderRuleStatus(rule.Status), ui.RenderApprovalStatus(rule.ApprovalStatus))
		if rule.IsGlobal || rule.CriticalRule {
			fmt.Printf("  Global: %s   Critical: %s (%s)\n",
				yesNo(rule.IsGlobal), yesNo(rule.CriticalRule), rule.CriticalScope)
		}
		if rule.ParentRuleID != nil {
			fmt.Printf("  Parent: %d\n", *rule.ParentRuleID)
		}
		if rule.DecisionTableID != nil {
			fmt.Printf("  Decision table: %d\n", *rule.DecisionTableID)
		}
		if rule.EffectiveStart != nil || rule.EffectiveEnd != nil {
			fmt.Printf("  Effective: %s to %s\n",
				formatTimePtr(rule.EffectiveStart, "always"), formatTimePtr(rule.EffectiveEnd, "forever"))
		}
		fmt.Printf("  Created: %s by %s\n", formatTime(rule.CreatedAt), rule.CreatedBy)
		if !rule.UpdatedAt.Equal(rule.CreatedAt) {
			fmt.Printf("  Updated: %s by %s\n", formatTime(rule.UpdatedAt), rule.UpdatedBy)
		}

		if rule.SQL != "" {
			fmt.Println()
			fmt.Println(ui.RenderCategory("SQL:"))
			sqlText := rule.SQL
			if !full {
				sqlText = ui.TruncateLines(sqlText, ui.DefaultMaxLines, ui.DefaultContextLines)
			}
			fmt.Println(indent(sqlText, "  "))
		}

		if len(deps) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory("Dependencies:"))
			for _, d := range deps {
				name := d.Table
				if d.Column != "" {
					name += "." + d.Column
				}
				fmt.Printf("  %-5s %s\n", d.Op, name)
			}
		}

		if lock != nil {
			fmt.Println()
			forced := ""
			if lock.Force {
				forced = " (forced)"
			}
			fmt.Printf("%s held by %s until %s%s\n",
				ui.RenderCategory("Lock:"), lock.LockedBy, formatTime(lock.ExpiresAt), forced)
		}

		for _, action := range []types.ActionType{types.ActionCreateOrUpdate, types.ActionDeactivate, types.ActionDelete} {
			rows := pipelines[action]
			if len(rows) == 0 {
				continue
			}
			fmt.Println()
			fmt.Println(ui.RenderCategory(fmt.Sprintf("Approvals (%s):", action)))
			for _, row := range rows {
				fmt.Printf("  %s stage %d  %s/%s%s\n",
					approvalIcon(row.ApprovedFlag), row.Stage, row.GroupName, row.Username,
					approvalWhen(row))
			}
		}

		if len(executions) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory("Recent executions:"))
			for _, e := range executions {
				fmt.Printf("  %s %s (%d rows, %dms)\n",
					ui.RenderOutcome(e.Passed), formatTime(e.ExecutedAt), e.RecordCount, e.ElapsedMS)
				if e.Message != "" && !e.Passed {
					fmt.Println(indent(ui.RenderMuted(ui.WrapText(e.Message, 72)), "    "))
				}
			}
		}

		if len(children) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory("Children:"))
			for _, c := range children {
				fmt.Printf("  %s%d: %s (%s)\n", ui.TreeChild, c.ID, c.Name, ui.RenderRuleStatus(c.Status))
			}
		}
	},
}

// parseRuleID parses a numeric rule ID argument.
func parseRuleID(arg string) int64 {
	return parsePositiveID(arg, "rule")
}

func parsePositiveID(arg, noun string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		FatalError("invalid %s ID %q", noun, arg)
	}
	return id
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time, empty string) string {
	if t == nil {
		return empty
	}
	return formatTime(*t)
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

func approvalIcon(flag types.ApprovedFlag) string {
	switch flag {
	case types.FlagApproved:
		return ui.RenderPassIcon()
	case types.FlagRejected:
		return ui.RenderFailIcon()
	}
	return ui.RenderSkipIcon()
}

func approvalWhen(row *types.Approval) string {
	if row.ApprovedAt == nil {
		return ""
	}
	verb := "approved"
	if row.ApprovedFlag == types.FlagRejected {
		verb = "rejected"
	}
	return fmt.Sprintf("  %s %s", verb, formatTime(*row.ApprovedAt))
}

func init() {
	showCmd.Flags().Bool("full", false, "Show full SQL without truncation")
	rootCmd.AddCommand(showCmd)
}
