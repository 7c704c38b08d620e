package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
	"github.com/brmkit/brm/internal/validation"
)

var validationCmd = &cobra.Command{
	Use:     "validation",
	Aliases: []string{"validations", "val"},
	Short:   "Manage data validations",
	Long: `Manage column-level data validations on the target database.

Validations are declarative checks (NOT NULL, RANGE, REGEX, FOREIGN_KEY)
that run before rule execution and on demand. A failing validation blocks
'brm run' for the affected table unless --skip-validations is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var validationAddCmd = &cobra.Command{
	Use:   "add <table> <column>",
	Short: "Add a data validation",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		rawType, _ := cmd.Flags().GetString("type")
		vtype := types.ValidationType(strings.ToUpper(rawType))
		if !vtype.IsValid() {
			FatalError("invalid validation type %q (want NOT NULL, RANGE, REGEX or FOREIGN_KEY)", rawType)
		}
		params, _ := cmd.Flags().GetString("params")
		if params == "" && vtype != types.ValidationNotNull {
			FatalErrorWithHint(fmt.Sprintf("validation type %s requires --params", vtype),
				"RANGE wants 'min,max', REGEX a pattern, FOREIGN_KEY 'ref_table.ref_column'")
		}

		v := &types.Validation{
			Table:  args[0],
			Column: args[1],
			Type:   vtype,
			Params: params,
		}
		if err := eng.Store().CreateValidation(rootCtx, v, currentActor()); err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(v)
			return
		}
		fmt.Printf("%s Added validation #%d: %s on %s.%s\n",
			ui.RenderPassIcon(), v.ID, v.Type, v.Table, v.Column)
	},
}

var validationListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List data validations",
	Run: func(cmd *cobra.Command, args []string) {
		var (
			rows []*types.Validation
			err  error
		)
		if table, _ := cmd.Flags().GetString("table"); table != "" {
			rows, err = eng.Store().ValidationsForTable(rootCtx, table)
		} else {
			rows, err = eng.Store().ListValidations(rootCtx)
		}
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(rows)
			return
		}
		if len(rows) == 0 {
			fmt.Println("No validations defined.")
			return
		}
		for _, v := range rows {
			line := fmt.Sprintf("%4d  %-12s %s.%s", v.ID, string(v.Type), v.Table, v.Column)
			if v.Params != "" {
				line += "  " + ui.RenderMuted(v.Params)
			}
			fmt.Println(line)
		}
	},
}

var validationRunCmd = &cobra.Command{
	Use:   "run [id]",
	Short: "Run data validations",
	Long: `Run data validations against the target database and record the
results. With an ID argument runs that single validation, with --table all
validations for one table, otherwise every registered validation.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runner := eng.Validations()

		var (
			logs []*types.ValidationLog
			err  error
		)
		switch {
		case len(args) == 1:
			id := parsePositiveID(args[0], "validation")
			var v *types.Validation
			v, err = findValidation(id)
			if err == nil {
				var entry *types.ValidationLog
				entry, err = runner.Run(rootCtx, v)
				if entry != nil {
					logs = append(logs, entry)
				}
			}
		case cmd.Flags().Changed("table"):
			table, _ := cmd.Flags().GetString("table")
			logs, err = runner.RunForTable(rootCtx, table)
		default:
			logs, err = runner.RunAll(rootCtx)
		}
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"passed":  validation.Passed(logs),
				"results": logs,
			})
			return
		}
		if len(logs) == 0 {
			fmt.Println("No validations to run.")
			return
		}
		printValidationLogs(logs)
		if validation.Passed(logs) {
			fmt.Printf("\n%s All %d validations passed\n", ui.RenderPassIcon(), len(logs))
		} else {
			failed := 0
			for _, l := range logs {
				if l.Result == types.ValidationFail {
					failed++
				}
			}
			fmt.Printf("\n%s %d of %d validations failed\n", ui.RenderFailIcon(), failed, len(logs))
		}
	},
}

var validationDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a data validation",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parsePositiveID(args[0], "validation")
		if err := eng.Store().DeleteValidation(rootCtx, id, currentActor()); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"deleted": id})
			return
		}
		fmt.Printf("%s Deleted validation #%d\n", ui.RenderPassIcon(), id)
	},
}

var validationLogCmd = &cobra.Command{
	Use:     "log",
	Aliases: []string{"logs"},
	Short:   "Show recent validation results",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		logs, err := eng.Store().ListValidationLogs(rootCtx, limit)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(logs)
			return
		}
		if len(logs) == 0 {
			fmt.Println("No validation runs recorded.")
			return
		}
		printValidationLogs(logs)
	},
}

// findValidation resolves a validation ID against the registry.
func findValidation(id int64) (*types.Validation, error) {
	rows, err := eng.Store().ListValidations(rootCtx)
	if err != nil {
		return nil, err
	}
	for _, v := range rows {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, fmt.Errorf("validation %d not found", id)
}

func printValidationLogs(logs []*types.ValidationLog) {
	for _, l := range logs {
		fmt.Printf("%s  %s %-12s %s.%s",
			formatTime(l.ValidatedAt), ui.RenderOutcome(l.Result == types.ValidationPass),
			string(l.Type), l.Table, l.Column)
		if l.Message != "" {
			fmt.Printf("  %s", ui.RenderMuted(l.Message))
		}
		fmt.Println()
	}
}

func init() {
	validationAddCmd.Flags().StringP("type", "t", "", "Validation type: NOT NULL, RANGE, REGEX, FOREIGN_KEY")
	validationAddCmd.Flags().String("params", "", "Type parameters ('0,100', a regex, 'ref_table.ref_column')")
	_ = validationAddCmd.MarkFlagRequired("type")

	validationListCmd.Flags().String("table", "", "Only validations for this table")
	validationRunCmd.Flags().String("table", "", "Run all validations for this table")
	validationLogCmd.Flags().Int("limit", 50, "Maximum rows (0: no limit)")

	validationCmd.AddCommand(validationAddCmd)
	validationCmd.AddCommand(validationListCmd)
	validationCmd.AddCommand(validationRunCmd)
	validationCmd.AddCommand(validationDeleteCmd)
	validationCmd.AddCommand(validationLogCmd)
	rootCmd.AddCommand(validationCmd)
}
