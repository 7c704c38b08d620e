package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/graph"
	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var depsCmd = &cobra.Command{
	Use:     "deps [id]",
	Aliases: []string{"tree", "graph"},
	Short:   "Show the rule dependency graph",
	Long: `Show the execution dependency graph. Edges come from parent links,
global-critical links, conflict priorities and composite rule expressions.
With an ID argument prints the subtree below that rule, otherwise every
root and its descendants.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		snap, err := eng.Store().GraphSnapshot(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}
		g := graph.Build(snap)

		names := make(map[int64]*types.Rule, len(snap.Rules))
		for _, r := range snap.Rules {
			names[r.ID] = r
		}

		var roots []int64
		if len(args) == 1 {
			id := parseRuleID(args[0])
			if !g.Contains(id) {
				FatalError("rule %d not found in the dependency graph", id)
			}
			roots = []int64{id}
		} else {
			roots = g.Roots()
			sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"roots":     roots,
				"adjacency": g.Adjacency,
			})
			return
		}
		if len(roots) == 0 {
			fmt.Println("No rules in the dependency graph.")
			return
		}

		seen := make(map[int64]bool)
		for i, root := range roots {
			if i > 0 {
				fmt.Println()
			}
			printDepTree(g, names, root, "", seen)
		}
	},
}

// printDepTree walks the adjacency list depth-first. A rule reachable through
// more than one edge prints once with children and afterwards as a stub, so
// diamond shapes stay readable.
func printDepTree(g *graph.Graph, names map[int64]*types.Rule, id int64, prefix string, seen map[int64]bool) {
	fmt.Printf("%s%s\n", prefix, depNodeLabel(names, id, seen[id]))
	if seen[id] {
		return
	}
	seen[id] = true

	children := g.Neighbors(id)
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	childPrefix := prefix
	if prefix != "" {
		childPrefix = prefix[:len(prefix)-len(ui.TreeChild)] + ui.TreeIndent
	}
	for _, child := range children {
		printDepTree(g, names, child, childPrefix+ui.TreeChild, seen)
	}
}

func depNodeLabel(names map[int64]*types.Rule, id int64, repeat bool) string {
	r, ok := names[id]
	if !ok {
		return fmt.Sprintf("#%d %s", id, ui.RenderMuted("(missing)"))
	}
	label := fmt.Sprintf("#%d %s %s", id, r.Name, ui.RenderRuleStatus(r.Status))
	if repeat {
		label += " " + ui.RenderMuted("(shown above)")
	}
	return label
}

func init() {
	rootCmd.AddCommand(depsCmd)
}
