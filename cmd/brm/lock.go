package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var lockCmd = &cobra.Command{
	Use:   "lock <rule-id>",
	Short: "Acquire the edit lock on a rule",
	Long: `Acquire the pessimistic edit lock on a rule. Updates, deactivations and
delete requests require the lock. Locks expire after their TTL; re-acquiring
your own lock extends it. --force steals a live lock (Admin only).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])
		ttl, _ := cmd.Flags().GetDuration("ttl")
		force, _ := cmd.Flags().GetBool("force")
		actor := currentActor()

		var lock *types.Lock
		var err error
		if force {
			lock, err = eng.Locks().ForceAcquire(rootCtx, id, actor, ttl)
		} else {
			lock, err = eng.Locks().Acquire(rootCtx, id, actor, ttl)
		}
		if err != nil {
			var held *storage.LockHeldError
			if errors.As(err, &held) {
				FatalErrorWithHint(err.Error(), "Wait for the lock to expire, or ask an Admin to run 'brm lock --force'")
			}
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(lock)
			return
		}
		fmt.Printf("%s Locked rule %d for %s until %s\n",
			ui.RenderPassIcon(), id, lock.LockedBy, formatTime(lock.ExpiresAt))
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <rule-id>",
	Short: "Release the edit lock on a rule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])

		if err := eng.Locks().Release(rootCtx, id, currentActor()); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"rule_id": id, "unlocked": true})
			return
		}
		fmt.Printf("%s Unlocked rule %d\n", ui.RenderPassIcon(), id)
	},
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List live edit locks",
	Run: func(cmd *cobra.Command, args []string) {
		locks, err := eng.Store().ListLocks(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(locks)
			return
		}
		if len(locks) == 0 {
			fmt.Println("No live locks.")
			return
		}
		fmt.Printf("%7s  %-16s %-17s %s\n", "RULE", "HOLDER", "EXPIRES", "")
		for _, l := range locks {
			forced := ""
			if l.Force {
				forced = ui.RenderWarn("forced")
			}
			fmt.Printf("%7d  %-16s %-17s %s\n", l.RuleID, l.LockedBy, formatTime(l.ExpiresAt), forced)
		}
	},
}

func init() {
	lockCmd.Flags().Duration("ttl", 0, "Lock time-to-live (default: lock-ttl config, 30m)")
	lockCmd.Flags().Bool("force", false, "Steal a live lock (Admin only)")
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(locksCmd)
}
