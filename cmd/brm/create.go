package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/timeparsing"
	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create [name]",
	Aliases: []string{"new"},
	Short:   "Create a rule and open its approval pipeline",
	Long: `Create a rule. The SQL is analyzed for table and column dependencies, the
rule starts INACTIVE, and an approval pipeline is opened across the impacted
business groups. Global rules are Admin-only and skip approval; activate them
with 'brm force-activate' when ready.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := ruleNameFromArgs(cmd, args)

		sqlText, _ := cmd.Flags().GetString("sql")
		sqlFile, _ := cmd.Flags().GetString("sql-file")
		if sqlText != "" && sqlFile != "" {
			FatalError("cannot specify both --sql and --sql-file")
		}
		if sqlFile != "" {
			data, err := os.ReadFile(sqlFile)
			if err != nil {
				FatalError("failed to read %s: %v", sqlFile, err)
			}
			sqlText = strings.TrimSpace(string(data))
		}

		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			owner = resolveGroup()
		}
		if owner == "" {
			FatalErrorWithHint("owner group required", "Pass --owner, or set --group/BRM_GROUP for your own group")
		}

		ruleType, _ := cmd.Flags().GetString("type")
		cdcType, _ := cmd.Flags().GetString("cdc")
		isGlobal, _ := cmd.Flags().GetBool("global")
		critical, _ := cmd.Flags().GetBool("critical")
		scopeStr, _ := cmd.Flags().GetString("scope")

		rule := &types.Rule{
			Name:         name,
			SQL:          sqlText,
			RuleType:     ruleType,
			OwnerGroup:   owner,
			IsGlobal:     isGlobal,
			CriticalRule: critical,
			CDCType:      cdcType,
		}

		// Critical and global rules gate descendants only when their scope
		// is wider than NONE, so give them a useful default.
		scope := types.CriticalScope(strings.ToUpper(scopeStr))
		if !cmd.Flags().Changed("scope") {
			switch {
			case isGlobal:
				scope = types.ScopeGlobal
			case critical:
				scope = types.ScopeGroup
			}
		}
		if scope != "" && !scope.IsValid() {
			FatalError("invalid scope %q (NONE|GROUP|CLUSTER|GLOBAL)", scopeStr)
		}
		rule.CriticalScope = scope

		if id := optionalInt64Flag(cmd, "parent"); id != nil {
			rule.ParentRuleID = id
		}
		if id := optionalInt64Flag(cmd, "group-id"); id != nil {
			rule.GroupID = id
		}
		if id := optionalInt64Flag(cmd, "decision-table"); id != nil {
			rule.DecisionTableID = id
		}
		if t := optionalTimeFlag(cmd, "effective-start"); t != nil {
			rule.EffectiveStart = t
		}
		if t := optionalTimeFlag(cmd, "effective-end"); t != nil {
			rule.EffectiveEnd = t
		}
		rule.SetDefaults()
		if err := rule.Validate(); err != nil {
			FatalError("%v", err)
		}

		created, err := eng.Lifecycle().Create(rootCtx, rule, currentActor())
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(created)
			return
		}
		fmt.Printf("%s Created rule %d: %s (v%d)\n", ui.RenderPassIcon(), created.ID, created.Name, created.Version)
		fmt.Printf("  Status: %s  Approval: %s\n",
			ui.RenderRuleStatus(created.Status), ui.RenderApprovalStatus(created.ApprovalStatus))
		if created.IsGlobal {
			fmt.Printf("  Global rule; no approval pipeline. Activate with: brm force-activate %d\n", created.ID)
			return
		}
		printPipelineSummary(created.ID, types.ActionCreateOrUpdate)
	},
}

// ruleNameFromArgs resolves the rule name from the positional argument or
// the --name flag, rejecting a mismatch between the two.
func ruleNameFromArgs(cmd *cobra.Command, args []string) string {
	nameFlag, _ := cmd.Flags().GetString("name")
	switch {
	case len(args) > 0 && nameFlag != "" && args[0] != nameFlag:
		FatalError("cannot specify different names as both positional argument and --name flag\n  Positional: %q\n  --name:     %q", args[0], nameFlag)
	case len(args) > 0:
		return args[0]
	case nameFlag != "":
		return nameFlag
	}
	FatalError("rule name required")
	return ""
}

// optionalInt64Flag returns the flag value when explicitly set, else nil.
func optionalInt64Flag(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt64(name)
	return &v
}

// optionalTimeFlag parses a time flag through the layered time parser:
// compact offsets (+6h, -1d), natural language ("tomorrow 9am"), RFC3339.
func optionalTimeFlag(cmd *cobra.Command, name string) *time.Time {
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

// printPipelineSummary lists the pending approval stages of a pipeline.
func printPipelineSummary(ruleID int64, action types.ActionType) {
	rows, err := eng.Approvals().Pipeline(rootCtx, ruleID, action)
	if err != nil || len(rows) == 0 {
		return
	}
	byStage := make(map[int][]string)
	maxStage := 0
	stageGroup := make(map[int]string)
	for _, row := range rows {
		byStage[row.Stage] = append(byStage[row.Stage], row.Username)
		stageGroup[row.Stage] = row.GroupName
		if row.Stage > maxStage {
			maxStage = row.Stage
		}
	}
	fmt.Println("  Pipeline:")
	for stage := 1; stage <= maxStage; stage++ {
		if len(byStage[stage]) == 0 {
			continue
		}
		fmt.Printf("    stage %d  %s: %s\n", stage, stageGroup[stage], strings.Join(byStage[stage], ", "))
	}
}

func init() {
	createCmd.Flags().String("name", "", "Rule name (alternative to positional argument)")
	createCmd.Flags().String("sql", "", "Rule SQL text")
	createCmd.Flags().String("sql-file", "", "Read rule SQL from a file")
	createCmd.Flags().String("owner", "", "Owner business group (default: --group/BRM_GROUP)")
	createCmd.Flags().StringP("type", "t", "", "Free-form rule type tag")
	createCmd.Flags().String("cdc", "", "Informational CDC tag")
	createCmd.Flags().Bool("global", false, "Global rule (Admin only, skips approval)")
	createCmd.Flags().Bool("critical", false, "Critical rule: a failure skips its descendants")
	createCmd.Flags().String("scope", "", "Critical scope (NONE|GROUP|CLUSTER|GLOBAL)")
	createCmd.Flags().Int64("parent", 0, "Parent rule ID")
	createCmd.Flags().Int64("group-id", 0, "Execution group ID")
	createCmd.Flags().Int64("decision-table", 0, "Decision table ID backing this rule")
	createCmd.Flags().String("effective-start", "", "Effective window start (+6h, 'tomorrow 9am', RFC3339)")
	createCmd.Flags().String("effective-end", "", "Effective window end")
	rootCmd.AddCommand(createCmd)
}
