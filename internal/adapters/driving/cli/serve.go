package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DanielTromp/atlas/internal/adapters/driving/httpapi"
	"github.com/DanielTromp/atlas/internal/logger"
)

var (
	serveAddr     string
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the JSON HTTP API:

  POST /search      hybrid search with citations
  POST /sync        start a background sync
  GET  /stats       index and sync statistics
  GET  /spaces      per-space page and chunk counts
  GET  /page/{id}   one indexed page with its chunks
  GET  /healthz     liveness

The listen address defaults to server.addr. When schedule.enabled is set, or
--schedule is given, incremental syncs run on the schedule.cron expression
alongside the API.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "run scheduled syncs alongside the API")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	server, err := httpapi.NewServer(&httpapi.Ports{
		Search:         searchService,
		Index:          indexService,
		Sync:           syncEngine,
		SearchDefaults: searchDefaults,
	})
	if err != nil {
		return err
	}

	addr, withSchedule, err := serveConfig()
	if err != nil {
		return err
	}
	if withSchedule && scheduler == nil {
		return errors.New("scheduling requested but schedule.cron is not configured")
	}

	g, ctx := errgroup.WithContext(commandContext(cmd))
	g.Go(func() error {
		return server.Run(ctx, addr)
	})
	if withSchedule {
		g.Go(func() error {
			return scheduler.Start(ctx)
		})
	}
	cmd.Printf("Listening on http://%s\n", addr)
	return g.Wait()
}

// serveConfig resolves the listen address and whether the scheduler runs.
func serveConfig() (string, bool, error) {
	addr := serveAddr
	withSchedule := serveSchedule
	if settingsService == nil {
		if addr == "" {
			return "", false, fmt.Errorf("%w: no listen address", errSettingsUnavailable)
		}
		return addr, withSchedule, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return "", false, fmt.Errorf("failed to get settings: %w", err)
	}
	if addr == "" {
		addr = settings.Server.Addr
	}
	if settings.Schedule.Enabled {
		withSchedule = true
	}
	logger.Debug("Serve: addr=%s schedule=%v", addr, withSchedule)
	return addr, withSchedule, nil
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scheduled incremental syncs",
	Long: `Runs incremental syncs of the configured spaces on the schedule.cron
expression until interrupted. A run that is still going when the next one is
due causes that tick to be skipped.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured: set schedule.cron")
	}
	return runUntilDone(commandContext(cmd), scheduler.Start)
}

// runUntilDone runs a blocking start function and treats cancellation as a clean exit.
func runUntilDone(ctx context.Context, start func(context.Context) error) error {
	err := start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
