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

var scheduleCmd = &cobra.Command{
	Use:     "schedule",
	Aliases: []string{"schedules"},
	Short:   "Manage one-shot rule schedules",
	Long: `Schedule rules for future execution. The daemon scans for due schedules
and fires each exactly once; a fired schedule records Executed or Failed.`,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <rule-id>",
	Short: "Schedule a rule execution",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])
		at, _ := cmd.Flags().GetString("at")
		withValidations, _ := cmd.Flags().GetBool("validations")

		fireAt, err := timeparsing.ParseRelativeTime(at, time.Now())
		if err != nil {
			FatalError("invalid --at: %v", err)
		}

		sched := &types.Schedule{
			RuleID:             id,
			FireAt:             fireAt,
			Status:             types.ScheduleScheduled,
			RunDataValidations: withValidations,
		}
		if err := eng.Store().CreateSchedule(rootCtx, sched, currentActor()); err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(sched)
			return
		}
		fmt.Printf("%s Schedule %d: rule %d fires at %s\n",
			ui.RenderPassIcon(), sched.ID, sched.RuleID, formatTime(sched.FireAt))
		if withValidations {
			fmt.Println("  Data validations run before execution.")
		}
	},
}

var scheduleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List schedules",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.ScheduleFilter
		if id := optionalInt64Flag(cmd, "rule"); id != nil {
			filter.RuleID = id
		}
		if cmd.Flags().Changed("status") {
			raw, _ := cmd.Flags().GetString("status")
			status := scheduleStatusFromString(raw)
			filter.Status = &status
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		schedules, err := eng.Store().ListSchedules(rootCtx, filter)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(schedules)
			return
		}
		if len(schedules) == 0 {
			fmt.Println("No schedules found.")
			return
		}
		fmt.Printf("%4s  %6s  %-17s %-10s %s\n", "ID", "RULE", "FIRES", "STATUS", "")
		for _, s := range schedules {
			validations := ""
			if s.RunDataValidations {
				validations = ui.RenderMuted("+validations")
			}
			fmt.Printf("%4d  %6d  %-17s %s %s\n",
				s.ID, s.RuleID, formatTime(s.FireAt), scheduleStatusCell(s.Status), validations)
		}
	},
}

var scheduleCancelCmd = &cobra.Command{
	Use:   "cancel <schedule-id>",
	Short: "Cancel a pending schedule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parsePositiveID(args[0], "schedule")

		if err := eng.Store().CancelSchedule(rootCtx, id, currentActor()); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"schedule_id": id, "cancelled": true})
			return
		}
		fmt.Printf("%s Cancelled schedule %d\n", ui.RenderPassIcon(), id)
	},
}

// scheduleStatusFromString accepts any case ("failed", "Failed").
func scheduleStatusFromString(raw string) types.ScheduleStatus {
	for _, s := range []types.ScheduleStatus{
		types.ScheduleScheduled, types.ScheduleExecuted, types.ScheduleFailed, types.ScheduleCancelled,
	} {
		if strings.EqualFold(raw, string(s)) {
			return s
		}
	}
	FatalError("invalid schedule status %q (Scheduled|Executed|Failed|Cancelled)", raw)
	return ""
}

func scheduleStatusCell(s types.ScheduleStatus) string {
	return ui.ScheduleStatusStyle(s).Render(fmt.Sprintf("%-10s", string(s)))
}

func init() {
	scheduleAddCmd.Flags().String("at", "", "When to fire (+6h, 'tomorrow 9am', RFC3339)")
	_ = scheduleAddCmd.MarkFlagRequired("at")
	scheduleAddCmd.Flags().Bool("validations", false, "Run data validations before the execution")

	scheduleListCmd.Flags().Int64("rule", 0, "Filter by rule ID")
	scheduleListCmd.Flags().String("status", "", "Filter by status (Scheduled|Executed|Failed|Cancelled)")
	scheduleListCmd.Flags().Int("limit", 0, "Maximum rows (0: no limit)")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleCancelCmd)
	rootCmd.AddCommand(scheduleCmd)
}
