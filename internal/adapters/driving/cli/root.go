// Package cli implements the atlas command line on top of the driving ports.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
	"github.com/DanielTromp/atlas/internal/logger"
)

// version is overridden at build time with -ldflags.
var version = "dev"

// Services injected by Execute.
var (
	searchService   driving.SearchService
	indexService    driving.IndexService
	syncEngine      driving.SyncEngine
	settingsService driving.SettingsService
	scheduler       driving.Scheduler
	checks          []Check
	searchDefaults  = domain.DefaultSearchOptions()
)

var (
	verbose  bool
	jsonLogs bool
)

// Services holds the ports the commands run against.
// Any field may be nil; commands that need a missing port report it.
type Services struct {
	Search   driving.SearchService
	Index    driving.IndexService
	Sync     driving.SyncEngine
	Settings driving.SettingsService

	// Scheduler is nil when no cron expression is configured.
	Scheduler driving.Scheduler

	SearchDefaults domain.SearchOptions

	// Checks lists the external dependencies the check command contacts.
	Checks []Check
}

// Check tests one external dependency.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Hybrid search over Confluence",
	Long: `Atlas indexes Confluence spaces into a local or remote store and answers
questions with hybrid keyword and semantic search, returning cited passages.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		logger.SetJSON(jsonLogs)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "write logs as JSON")
}

// SetVersion sets the string printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Configure injects the services used by the commands.
func Configure(svc Services) {
	searchService = svc.Search
	indexService = svc.Index
	syncEngine = svc.Sync
	settingsService = svc.Settings
	scheduler = svc.Scheduler
	checks = svc.Checks
	searchDefaults = svc.SearchDefaults
	if searchDefaults.TopK == 0 {
		searchDefaults = domain.DefaultSearchOptions()
	}
}

// Execute runs the root command with the given services.
func Execute(ctx context.Context, svc Services) error {
	Configure(svc)
	return rootCmd.ExecuteContext(ctx)
}

var (
	errSearchUnavailable   = errors.New("search service not configured")
	errIndexUnavailable    = errors.New("index service not configured")
	errSyncUnavailable     = errors.New("sync engine not configured")
	errSettingsUnavailable = errors.New("settings service not configured")
)

// commandContext returns the command's context, falling back to Background
// when the command runs outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
