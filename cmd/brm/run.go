package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/executor"
	"github.com/brmkit/brm/internal/ui"
)

var runCmd = &cobra.Command{
	Use:     "run [rule-id...]",
	Aliases: []string{"execute"},
	Short:   "Execute rules in dependency order",
	Long: `Execute rules breadth-first along the dependency graph. With no
arguments the traversal starts at every graph root; with rule IDs it starts
there. Only ACTIVE rules inside their effective window run. Data validations
on a rule's tables gate its execution; a failing critical rule skips its
descendants. Outcomes land in the execution log either way.`,
	Run: func(cmd *cobra.Command, args []string) {
		skipValidations, _ := cmd.Flags().GetBool("skip-validations")

		startIDs := make([]int64, 0, len(args))
		for _, arg := range args {
			startIDs = append(startIDs, parseRuleID(arg))
		}

		result, err := eng.Executor().Execute(rootCtx, startIDs, executor.Options{
			SkipValidations: skipValidations,
		})
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(result)
			return
		}
		fmt.Printf("%s %d executed, %d skipped\n",
			runIcon(result), len(result.Executed), len(result.Skipped))
		if len(result.Executed) > 0 {
			fmt.Printf("  Executed: %s\n", joinIDs(result.Executed))
		}
		if len(result.Skipped) > 0 {
			fmt.Printf("  Skipped:  %s\n", joinIDs(result.Skipped))
		}
		for _, failure := range result.ValidationFailures {
			fmt.Printf("  %s %s\n", ui.RenderFailIcon(), failure)
		}
	},
}

func runIcon(result *executor.Result) string {
	if len(result.Skipped) > 0 || len(result.ValidationFailures) > 0 {
		return ui.RenderWarnIcon()
	}
	return ui.RenderPassIcon()
}

func joinIDs(ids []int64) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", id)
	}
	return out
}

func init() {
	runCmd.Flags().Bool("skip-validations", false, "Bypass the data-validation gate")
	rootCmd.AddCommand(runCmd)
}
