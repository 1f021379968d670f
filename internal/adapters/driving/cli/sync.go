package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
)

var (
	syncFull  bool
	syncSince string
)

// progressInterval is how often a foreground sync reports progress.
var progressInterval = 500 * time.Millisecond

var syncCmd = &cobra.Command{
	Use:   "sync [space-key...]",
	Short: "Synchronise Confluence spaces into the index",
	Long: `Fetches pages from Confluence, chunks and embeds them, and writes them to
the index. Without arguments the configured default spaces are synchronised.

By default only pages modified since the last successful sync of each space
are processed. Use --full to reprocess every page, or --since to pick the
cut-off yourself.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "reprocess every page")
	syncCmd.Flags().StringVar(&syncSince, "since", "",
		"only pages modified after this RFC 3339 time or this long ago (e.g. 24h)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncEngine == nil {
		return errSyncUnavailable
	}
	if syncFull && syncSince != "" {
		return fmt.Errorf("%w: --full and --since are mutually exclusive", domain.ErrInvalidInput)
	}

	since, err := parseSince(syncSince, time.Now())
	if err != nil {
		return err
	}

	mode := domain.SyncModeIncremental
	if syncFull {
		mode = domain.SyncModeFull
	}
	if len(args) > 0 {
		cmd.Printf("Synchronising %v (%s)...\n", args, mode)
	} else {
		cmd.Printf("Synchronising configured spaces (%s)...\n", mode)
	}

	stats, err := syncWithProgress(commandContext(cmd), cmd, syncEngine, func(ctx context.Context) ([]domain.SyncStats, error) {
		if syncFull {
			return syncEngine.FullSync(ctx, args)
		}
		return syncEngine.IncrementalSync(ctx, args, since)
	})

	printSyncStats(cmd, stats)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// parseSince accepts an absolute RFC 3339 timestamp or a duration counted back from now.
func parseSince(value string, now time.Time) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("%w: --since wants an RFC 3339 time or a positive duration, got %q",
			domain.ErrInvalidInput, value)
	}
	t := now.Add(-d)
	return &t, nil
}

// syncWithProgress runs sync while displaying progress updates.
func syncWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	engine driving.SyncEngine,
	run func(context.Context) ([]domain.SyncStats, error),
) ([]domain.SyncStats, error) {
	type result struct {
		stats []domain.SyncStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := run(ctx)
		done <- result{stats, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case r := <-done:
			if last >= 0 {
				cmd.Println()
			}
			return r.stats, r.err
		case <-ticker.C:
			processed := 0
			for _, p := range engine.Status() {
				processed += p.PagesProcessed + p.PagesSkipped
			}
			if processed > last {
				cmd.Printf("\rProcessing... %d pages", processed)
				last = processed
			}
		}
	}
}

func printSyncStats(cmd *cobra.Command, stats []domain.SyncStats) {
	for _, st := range stats {
		status := "ok"
		if st.Err != nil {
			status = "failed: " + st.Err.Error()
		}
		cmd.Printf("  %-12s %d processed, %d skipped, %d failed, %d chunks in %s (%s)\n",
			st.SpaceKey, st.PagesProcessed, st.PagesSkipped, st.PagesFailed, st.ChunksCreated,
			st.EndTime.Sub(st.StartTime).Round(time.Millisecond), status)
	}
}
