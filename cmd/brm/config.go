package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brmkit/brm/internal/config"
	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
	Long: `Manage configuration settings.

Startup settings (db, actor, lock-ttl, scheduler.*, approval.*, ...) live
in .brm/config.yaml because they are read before the database opens.
Everything else is stored per-project in the rules database and travels
with it.

Examples:
  brm config set lock-ttl 45m
  brm config set notify.email rules-team@example.com
  brm config get scheduler.interval
  brm config list
  brm config unset notify.email`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]

		if err := config.ValidateKey(key, value); err != nil {
			FatalError("%v", err)
		}

		// Startup keys go to config.yaml; they are read before the
		// database is opened, so storing them there would be too late.
		if config.IsYamlOnlyKey(key) {
			if err := config.SetYamlConfig(key, value); err != nil {
				FatalError("setting config: %v", err)
			}
			if jsonOutput {
				outputJSON(map[string]interface{}{
					"key":      key,
					"value":    value,
					"location": "config.yaml",
				})
			} else {
				fmt.Printf("Set %s = %s (in config.yaml)\n", key, value)
			}
			return
		}

		if err := eng.Store().SetConfig(rootCtx, key, value); err != nil {
			FatalError("setting config: %v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value})
		} else {
			fmt.Printf("Set %s = %s\n", key, value)
		}
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]

		if config.IsYamlOnlyKey(key) {
			value := config.GetYamlConfig(key)
			if jsonOutput {
				outputJSON(map[string]interface{}{
					"key":      key,
					"value":    value,
					"location": "config.yaml",
				})
				return
			}
			if value == "" {
				fmt.Printf("%s (not set in config.yaml)\n", key)
			} else {
				fmt.Println(value)
			}
			return
		}

		value, err := eng.Store().GetConfig(rootCtx, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			FatalError("getting config: %v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value})
			return
		}
		if value == "" {
			fmt.Printf("%s (not set)\n", key)
		} else {
			fmt.Println(value)
		}
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := eng.Store().GetAllConfig(rootCtx)
		if err != nil {
			FatalError("listing config: %v", err)
		}

		if jsonOutput {
			outputJSON(cfg)
			return
		}
		if len(cfg) == 0 {
			fmt.Println("No configuration set")
			return
		}

		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Println("\nConfiguration:")
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, cfg[k])
		}
		fmt.Println()
		fmt.Println(ui.RenderMuted("Note: config.yaml and environment variables take precedence over database config."))
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Delete a configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		if config.IsYamlOnlyKey(key) {
			FatalErrorWithHint(fmt.Sprintf("%s lives in .brm/config.yaml", key),
				"Edit the file directly to remove it")
		}
		if err := eng.Store().DeleteConfig(rootCtx, key); err != nil {
			FatalError("deleting config: %v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": key})
		} else {
			fmt.Printf("Unset %s\n", key)
		}
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the configuration keys brm understands",
	Long: `Lists every known configuration key with its description, environment
variable and default. Unknown keys are accepted too and stored verbatim,
which integrations use for their own settings (e.g. notify.email).`,
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			type keyDoc struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				EnvVar      string `json:"env_var,omitempty"`
				Default     string `json:"default,omitempty"`
			}
			docs := make([]keyDoc, 0, len(config.Keys))
			for _, k := range config.Keys {
				docs = append(docs, keyDoc{k.Name, k.Description, k.EnvVar, k.Default})
			}
			outputJSON(docs)
			return
		}

		fmt.Println("\nConfiguration Keys:")
		fmt.Println("===================")
		for _, k := range config.Keys {
			fmt.Printf("  %-24s %s\n", k.Name, k.Description)
			details := []string{}
			if k.EnvVar != "" {
				details = append(details, "env: "+k.EnvVar)
			}
			if k.Default != "" {
				details = append(details, "default: "+k.Default)
			}
			if config.IsYamlOnlyKey(k.Name) {
				details = append(details, "config.yaml")
			}
			if len(details) > 0 {
				fmt.Printf("  %-24s %s\n", "", ui.RenderMuted("("+strings.Join(details, ", ")+")"))
			}
		}
		fmt.Println("\nSet with: brm config set <key> <value>")
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
	rootCmd.AddCommand(configCmd)
}
