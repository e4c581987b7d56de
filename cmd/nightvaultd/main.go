// nightvaultd is the daemon-only entrypoint for container deployments: it
// skips the CLI layer and runs the status server directly from configuration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nightvault/nightvault/internal/app"
	"github.com/nightvault/nightvault/internal/observability"
)

func main() {
	// Enable graceful shutdown via OS signals; context cancellation propagates to all commands.
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,    // SIGINT: Ctrl+C (cross-platform)
		syscall.SIGTERM, // SIGTERM: Docker/k8s termination (Unix-only)
	)
	defer stop()

	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "Application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig(os.Getenv("NIGHTVAULT_CONFIG"))
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, level, cfg.LogFormat, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer shutdown(ctx)

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer application.Close()

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
