package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure Confluence access, embedding, storage and search options.

Settings live in config.toml under the atlas home directory. Any key can be
overridden with an ATLAS_<SECTION>_<NAME> environment variable; overrides are
shown here but never written to the file.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Change one setting by its dotted key, for example:

  atlas settings set confluence.base_url https://example.atlassian.net/wiki
  atlas settings set confluence.spaces OPS,DEV
  atlas settings set search.top_k 5

Lists are comma separated and durations use Go syntax (30s, 5m).`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List recognised setting keys",
	RunE:  runSettingsKeys,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsUnavailable
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")

	section := ""
	for _, key := range settingsService.Keys() {
		name, _, _ := strings.Cut(key, ".")
		if name != section {
			section = name
			cmd.Println()
			cmd.Printf("[%s]\n", section)
		}
		cmd.Printf("  %s = %s\n", key, settingsService.Display(settings, key))
	}
	cmd.Println()

	if err := settings.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	}
	if !settings.Confluence.IsConfigured() {
		cmd.Println("Confluence is not configured. Run 'atlas settings set confluence.base_url <url>'.")
	}
	if !settings.Embedding.IsConfigured() {
		cmd.Println("No embedding provider configured; search uses keywords only.")
	}
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsUnavailable
	}
	if !knownKey(args[0]) {
		return fmt.Errorf("unknown setting %q (see 'atlas settings keys')", args[0])
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	cmd.Println(settingsService.Display(settings, args[0]))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsUnavailable
	}

	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	cmd.Printf("%s = %s\n", args[0], settingsService.Display(settings, args[0]))
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsUnavailable
	}
	for _, key := range settingsService.Keys() {
		cmd.Println(key)
	}
	return nil
}

func knownKey(key string) bool {
	for _, k := range settingsService.Keys() {
		if k == key {
			return true
		}
	}
	return false
}
