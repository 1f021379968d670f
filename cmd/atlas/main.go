// Command atlas indexes Confluence spaces and serves hybrid search over them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/DanielTromp/atlas/internal/adapters/driving/cli"
	"github.com/DanielTromp/atlas/internal/app"
	"github.com/DanielTromp/atlas/internal/logger"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// A .env file in the working directory is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := app.New(ctx, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "atlas: %v\n", err)
		return 1
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("Shutdown: %v", err)
		}
	}()
	for _, w := range registry.Warnings {
		logger.Warn("%s", w)
	}

	cli.SetVersion(version)
	if err := cli.Execute(ctx, registry.CLIServices()); err != nil {
		return 1
	}
	return 0
}
