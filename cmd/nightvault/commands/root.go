package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/nightvault/nightvault/internal/app"
	"github.com/nightvault/nightvault/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "nightvault",
		Usage:   "Back up application settings to a local directory or Google Drive",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
		},
		Commands: []*cli.Command{
			authCommand(),
			destinationCommand(),
			backupCommand(),
			serveCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// loadConfig loads the configuration file and applies command-line overrides.
func loadConfig(cmd *cli.Command) (*app.Config, error) {
	cfg, err := app.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if format := cmd.String("log-format"); format != "" {
		cfg.LogFormat = format
	}
	return cfg, nil
}

// setup loads config and installs the logging pipeline. Every action calls it
// first; the returned shutdown flushes buffered log exporters.
func setup(ctx context.Context, cmd *cli.Command) (*app.Config, observability.ShutdownFunc, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	shutdown, err := observability.Instrument(ctx, level, cfg.LogFormat, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, shutdown, nil
}
