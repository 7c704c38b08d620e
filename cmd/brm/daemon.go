package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/brmkit/brm/internal/approvers"
	"github.com/brmkit/brm/internal/config"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the schedule daemon",
	Long: `Run the background daemon for this workspace. It scans for due schedules
every interval and executes each exactly once, and re-seeds the business
group registry whenever .brm/approvers.toml changes. One daemon runs per
workspace; a second instance exits immediately.`,
	Run: func(cmd *cobra.Command, args []string) {
		brmDir, err := config.FindBRMDir()
		if err != nil {
			FatalError("%v", err)
		}

		// One daemon per workspace.
		pidLock := flock.New(filepath.Join(brmDir, "daemon.lock"))
		locked, err := pidLock.TryLock()
		if err != nil {
			FatalError("daemon lock: %v", err)
		}
		if !locked {
			FatalErrorWithHint("another brm daemon is already running for this workspace",
				"Stop it first, or remove .brm/daemon.lock if it is stale")
		}
		defer func() { _ = pidLock.Unlock() }()

		logger := daemonLogger()

		// Editors and config tools replace files rather than write in place,
		// so watch the directory and filter events by name.
		var events chan fsnotify.Event
		var watchErrs chan error
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Printf("approvers watch unavailable: %v", err)
		} else {
			defer func() { _ = watcher.Close() }()
			if err := watcher.Add(brmDir); err != nil {
				logger.Printf("approvers watch unavailable: %v", err)
			} else {
				events = watcher.Events
				watchErrs = watcher.Errors
			}
		}

		eng.StartScheduler(rootCtx)
		interval := config.GetDuration("scheduler.interval")
		parallelism := config.GetInt("scheduler.parallelism")
		logger.Printf("daemon started: interval=%s parallelism=%d db=%s", interval, parallelism, store.Path())
		if !jsonOutput {
			fmt.Printf("brm daemon running (interval %s). Ctrl-C to stop.\n", interval)
		}

		for {
			select {
			case <-rootCtx.Done():
				logger.Printf("daemon stopping")
				return
			case event, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if filepath.Base(event.Name) != approvers.FileName {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					reloadApprovers(brmDir, logger)
				}
			case err, ok := <-watchErrs:
				if !ok {
					watchErrs = nil
					continue
				}
				logger.Printf("approvers watch: %v", err)
			}
		}
	},
}

// reloadApprovers re-seeds the group registry from approvers.toml.
func reloadApprovers(brmDir string, logger *log.Logger) {
	groups, approverSets, err := approvers.Load(brmDir)
	if err != nil {
		logger.Printf("approvers reload failed: %v", err)
		return
	}
	if len(groups) == 0 {
		return
	}
	if err := store.SeedGroups(rootCtx, groups, approverSets); err != nil {
		logger.Printf("approvers reload failed: %v", err)
		return
	}
	logger.Printf("approvers reloaded: %d group(s)", len(groups))
}

// daemonLogger returns the engine log sink: a size-rotated file when
// daemon.log-path is configured, stderr otherwise.
func daemonLogger() *log.Logger {
	logPath := config.GetString("daemon.log-path")
	if logPath == "" {
		return log.Default()
	}
	return log.New(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}, "", log.LstdFlags)
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "Schedule scan interval (default: scheduler.interval config, 60s)")
	daemonCmd.Flags().Int("parallelism", 0, "Due schedules fired concurrently (default: scheduler.parallelism config, 1)")
	daemonCmd.Flags().String("log", "", "Rotated log file (default: daemon.log-path config, stderr)")
	rootCmd.AddCommand(daemonCmd)
}
