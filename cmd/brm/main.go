package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/config"
	"github.com/brmkit/brm/internal/configfile"
	"github.com/brmkit/brm/internal/engine"
	"github.com/brmkit/brm/internal/storage/sqlite"
	"github.com/brmkit/brm/internal/targetdb"
	"github.com/brmkit/brm/internal/telemetry"
	"github.com/brmkit/brm/internal/types"
	"github.com/brmkit/brm/internal/ui"
)

var (
	dbPath     string
	actorFlag  string
	groupFlag  string
	jsonOutput bool
	noColor    bool

	store *sqlite.Store
	eng   *engine.Engine

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noDbCommands run without an initialized project; PersistentPreRun skips
// database discovery for them.
var noDbCommands = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
}

func isNoDbCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if noDbCommands[c.Name()] {
			return true
		}
	}
	return false
}

// resolveActor returns the user identity recorded in audit trails.
// Priority: --actor flag > BRM_ACTOR env > config > git config user.name > $USER > "unknown"
func resolveActor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if envActor := os.Getenv("BRM_ACTOR"); envActor != "" {
		return envActor
	}
	if cfgActor := config.GetString("actor"); cfgActor != "" {
		return cfgActor
	}
	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if gitUser := strings.TrimSpace(string(out)); gitUser != "" {
			return gitUser
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// resolveGroup returns the business group the actor operates under.
// Priority: --group flag > BRM_GROUP env > config > ""
func resolveGroup() string {
	if groupFlag != "" {
		return groupFlag
	}
	if envGroup := os.Getenv("BRM_GROUP"); envGroup != "" {
		return envGroup
	}
	return config.GetString("group")
}

// currentActor builds the identity pair mutating commands pass to the engine.
func currentActor() types.Actor {
	return types.Actor{UserID: resolveActor(), Group: resolveGroup()}
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// flagConfigBindings maps flag names to their config keys. Values flow
// flag > env > config.yaml > default; an explicitly-set flag is pushed into
// the config layer so every consumer sees the same effective value.
var flagConfigBindings = []struct{ flag, key string }{
	{"json", "json"},
	{"no-color", "no-color"},
	{"db", "db"},
	{"actor", "actor"},
	{"group", "group"},
	{"interval", "scheduler.interval"},
	{"parallelism", "scheduler.parallelism"},
	{"log", "daemon.log-path"},
}

// applyFlagOverrides pushes explicitly-set flags into the config layer, then
// reads the effective values back into the globals every command consults.
func applyFlagOverrides(cmd *cobra.Command) {
	for _, b := range flagConfigBindings {
		if f := cmd.Flags().Lookup(b.flag); f != nil && f.Changed {
			config.Set(b.key, f.Value.String())
		}
	}
	jsonOutput = config.GetBool("json")
	noColor = config.GetBool("no-color")
}

// openEngine discovers the project, opens the metadata store and target
// database, and assembles the engine all non-init commands share.
func openEngine() {
	brmDir, err := config.FindBRMDir()
	if err != nil {
		FatalErrorWithHint(err.Error(), "Run 'brm init' to set up a project here")
	}

	cfg, err := configfile.Load(brmDir)
	if err != nil {
		WarnError("failed to load metadata.json: %v", err)
	}
	if cfg == nil {
		cfg = configfile.DefaultConfig()
	}

	// Database path: --db flag > BRM_DB env > config.yaml > metadata.json
	path := dbPath
	if path == "" {
		path = config.GetString("db")
	}
	if path == "" {
		path = cfg.DatabasePath(brmDir)
	}

	st, err := sqlite.New(rootCtx, path)
	if err != nil {
		FatalError("failed to open database %s: %v", path, err)
	}
	store = st

	// Target database for rule SQL: --target-dsn/BRM_TARGET_DSN/config.yaml
	// outrank metadata.json. Empty means rules run against the metadata
	// database itself.
	dsn := config.GetString("target-dsn")
	if dsn == "" {
		dsn = cfg.TargetDSN
	}
	target := st.UnderlyingDB()
	if dsn != "" {
		target, err = targetdb.Open(rootCtx, dsn)
		if err != nil {
			_ = st.Close()
			FatalError("failed to open target database: %v", err)
		}
	}

	eng = engine.New(st, target, engineConfig(cfg))
}

// engineConfig merges config-layer tunables with the project metadata.
// metadata.json settings describe the project and win over ambient defaults.
func engineConfig(cfg *configfile.Config) engine.Config {
	ec := engine.Config{
		LockTTL:              config.GetDuration("lock-ttl"),
		ApprovalStages:       config.GetStringSlice("approval.stages"),
		FinalApprover:        config.GetString("approval.final-approver"),
		SchedulerInterval:    config.GetDuration("scheduler.interval"),
		SchedulerParallelism: config.GetInt("scheduler.parallelism"),
		Logger:               daemonLogger(),
	}
	if cfg.DefaultLockTTL != "" {
		if d, err := time.ParseDuration(cfg.DefaultLockTTL); err == nil {
			ec.LockTTL = d
		} else {
			WarnError("metadata.json default_lock_ttl %q is not a duration: %v", cfg.DefaultLockTTL, err)
		}
	}
	if len(cfg.ApprovalStages) > 0 {
		ec.ApprovalStages = cfg.ApprovalStages
	}
	return ec
}

var rootCmd = &cobra.Command{
	Use:   "brm",
	Short: "brm - SQL business rule manager",
	Long: `Versioned SQL business rules with multi-stage approval, pessimistic edit
locks, dependency-ordered execution, scheduled runs and a full audit trail.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("brm version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		applyFlagOverrides(cmd)
		ui.ConfigureColor(noColor)

		// Providers must exist before the engine builds its instruments.
		if err := telemetry.Init(rootCtx, "brm", Version); err != nil {
			WarnError("telemetry: %v", err)
		}

		if isNoDbCommand(cmd) {
			return
		}

		openEngine()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if eng != nil {
			if err := eng.Close(); err != nil {
				WarnError("close: %v", err)
			}
			eng = nil
			store = nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .brm/metadata.json setting)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor recorded in audit trails (default: $BRM_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().StringVar(&groupFlag, "group", "", "Business group the actor acts for (default: $BRM_GROUP)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	rootCmd.InitDefaultHelpCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
