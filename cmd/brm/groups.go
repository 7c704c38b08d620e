package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/ui"
)

var groupsCmd = &cobra.Command{
	Use:     "groups",
	Aliases: []string{"group"},
	Short:   "Manage business groups and their approvers",
	Long: `Manage business groups and their approver rosters. Groups are seeded
from .brm/approvers.toml by 'brm init' and re-read by the daemon when the
file changes; approver membership can also be edited here directly.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var groupsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List groups and approvers",
	Run: func(cmd *cobra.Command, args []string) {
		groups, err := eng.Store().ListGroups(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			type groupRow struct {
				Name        string   `json:"group_name"`
				Description string   `json:"description,omitempty"`
				Email       string   `json:"email,omitempty"`
				Approvers   []string `json:"approvers"`
			}
			rows := make([]groupRow, 0, len(groups))
			for _, g := range groups {
				approvers, err := eng.Store().GroupApprovers(rootCtx, g.Name)
				if err != nil {
					FatalError("%v", err)
				}
				rows = append(rows, groupRow{g.Name, g.Description, g.Email, approvers})
			}
			outputJSON(rows)
			return
		}
		if len(groups) == 0 {
			fmt.Println("No groups defined. Run 'brm init' or edit .brm/approvers.toml.")
			return
		}
		for _, g := range groups {
			line := ui.RenderAccent(g.Name)
			if g.Description != "" {
				line += "  " + g.Description
			}
			if g.Email != "" {
				line += "  " + ui.RenderMuted("<"+g.Email+">")
			}
			fmt.Println(line)

			approvers, err := eng.Store().GroupApprovers(rootCtx, g.Name)
			if err != nil {
				FatalError("%v", err)
			}
			if len(approvers) == 0 {
				fmt.Printf("%s%s\n", ui.TreeChild, ui.RenderMuted("no approvers"))
			} else {
				fmt.Printf("%sapprovers: %s\n", ui.TreeChild, strings.Join(approvers, ", "))
			}
		}
	},
}

var groupsAddApproverCmd = &cobra.Command{
	Use:   "add-approver <group> <username>",
	Short: "Add an approver to a group",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		group, user := args[0], args[1]
		if _, err := eng.Store().GetGroup(rootCtx, group); err != nil {
			FatalErrorWithHint(fmt.Sprintf("%v", err),
				"Run 'brm groups list' to see the known groups")
		}
		if err := eng.Store().AddGroupApprover(rootCtx, group, user, currentActor()); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"group": group, "approver": user})
			return
		}
		fmt.Printf("%s Added %s as approver for %s\n", ui.RenderPassIcon(), user, group)
	},
}

var groupsRemoveApproverCmd = &cobra.Command{
	Use:   "remove-approver <group> <username>",
	Short: "Remove an approver from a group",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		group, user := args[0], args[1]
		if err := eng.Store().RemoveGroupApprover(rootCtx, group, user, currentActor()); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"group": group, "removed": user})
			return
		}
		fmt.Printf("%s Removed %s from %s approvers\n", ui.RenderPassIcon(), user, group)
	},
}

func init() {
	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsAddApproverCmd)
	groupsCmd.AddCommand(groupsRemoveApproverCmd)
	rootCmd.AddCommand(groupsCmd)
}
