package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/timeparsing"
	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Long: `Show the append-only audit log, newest first. Every mutation writes an
entry in the same transaction: inserts, updates, status changes, approvals,
rejections, lifecycle requests and force transitions.`,
	Run: func(cmd *cobra.Command, args []string) {
		filter := buildAuditFilter(cmd)

		entries, err := eng.Store().ListAudit(rootCtx, filter)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(entries)
			return
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries found.")
			return
		}
		showData, _ := cmd.Flags().GetBool("data")
		var buf strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&buf, "%s  %-18s %-20s #%-5d %s\n",
				formatTime(e.Timestamp), auditActionCell(e.Action), e.TableName, e.RecordID,
				ui.RenderAccent(e.Actor))
			// Snapshots stay one line each here; --json carries them in full.
			if showData {
				if e.OldData != "" {
					fmt.Fprintf(&buf, "  %s %s\n", ui.RenderMuted("old:"), ui.TruncateSimple(e.OldData, 200))
				}
				if e.NewData != "" {
					fmt.Fprintf(&buf, "  %s %s\n", ui.RenderMuted("new:"), ui.TruncateSimple(e.NewData, 200))
				}
			}
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		if err := ui.ToPager(buf.String(), noPager); err != nil {
			FatalError("pager failed: %v", err)
		}
	},
}

// buildAuditFilter assembles the store filter from the audit flags.
func buildAuditFilter(cmd *cobra.Command) types.AuditFilter {
	var filter types.AuditFilter
	filter.Actor, _ = cmd.Flags().GetString("by")
	filter.TableName, _ = cmd.Flags().GetString("table")
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	if cmd.Flags().Changed("action") {
		raw, _ := cmd.Flags().GetString("action")
		filter.Action = types.AuditAction(strings.ToUpper(raw))
	}
	if id := optionalInt64Flag(cmd, "record"); id != nil {
		filter.RecordID = id
	}
	if t := auditTimeFlag(cmd, "since"); t != nil {
		filter.Since = t
	}
	if t := auditTimeFlag(cmd, "until"); t != nil {
		filter.Until = t
	}
	return filter
}

func auditTimeFlag(cmd *cobra.Command, name string) *time.Time {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	raw, _ := cmd.Flags().GetString(name)
	t, err := timeparsing.ParseRelativeTime(raw, time.Now())
	if err != nil {
		FatalError("invalid --%s: %v", name, err)
	}
	return &t
}

func auditActionCell(a types.AuditAction) string {
	cell := fmt.Sprintf("%-18s", string(a))
	switch a {
	case types.AuditApprove, types.AuditInsert:
		return ui.RenderPass(cell)
	case types.AuditReject, types.AuditDelete:
		return ui.RenderFail(cell)
	case types.AuditForceActivate, types.AuditForceDeactivate:
		return ui.RenderWarn(cell)
	}
	return ui.RenderMuted(cell)
}

func init() {
	auditCmd.Flags().String("by", "", "Filter by actor")
	auditCmd.Flags().String("action", "", "Filter by action (INSERT|UPDATE|DELETE|STATUS_CHANGE|APPROVE|REJECT|...)")
	auditCmd.Flags().String("table", "", "Filter by table name (BRM_RULES, RULE_SCHEDULES, ...)")
	auditCmd.Flags().Int64("record", 0, "Filter by record ID")
	auditCmd.Flags().String("since", "", "Entries at or after this time (-1d, 'last monday', RFC3339)")
	auditCmd.Flags().String("until", "", "Entries before this time")
	auditCmd.Flags().Int("limit", 50, "Maximum rows (0: no limit)")
	auditCmd.Flags().Bool("data", false, "Include old/new data snapshots")
	auditCmd.Flags().Bool("no-pager", false, "Print directly instead of paging long output")
	rootCmd.AddCommand(auditCmd)
}
