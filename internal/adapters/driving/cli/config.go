package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkiv-labs/arkiv/internal/adapters/driven/config/file"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	RunE:  runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Sets a configuration value and persists it immediately.

Known keys:
  ` + file.KeyDataDir + `              directory holding archives and indexes
  ` + file.KeyDefaultK + `         default number of results cited by ask
  ` + file.KeyBuildTimeout + `  per-build timeout in seconds
  ` + file.KeyWatch + `            rebuild automatically while watching
  ` + file.KeyVerbose + `            verbose logging by default`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	cmd.Printf("Configuration file: %s\n\n", configStore.Path())

	keys := []string{
		file.KeyDataDir, file.KeyDefaultK, file.KeyBuildTimeout, file.KeyWatch, file.KeyVerbose,
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, ok := configStore.Get(key)
		if !ok {
			cmd.Printf("  %-25s (default)\n", key)
			continue
		}
		cmd.Printf("  %-25s %v\n", key, value)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	value, ok := configStore.Get(args[0])
	if !ok {
		return fmt.Errorf("key %s is not set", args[0])
	}
	cmd.Printf("%v\n", value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key, raw := args[0], args[1]
	if err := configStore.Set(key, parseConfigValue(raw)); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	cmd.Printf("%s set.\n", key)
	return nil
}

// parseConfigValue keeps booleans and integers typed in the TOML file.
func parseConfigValue(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}
