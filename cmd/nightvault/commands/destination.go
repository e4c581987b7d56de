package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/nightvault/nightvault/internal/app"
	"github.com/nightvault/nightvault/internal/destination"
	"github.com/nightvault/nightvault/internal/prefs"
)

// destinationCommand returns the 'destination' subcommand for selecting where
// each category's backups go.
func destinationCommand() *cli.Command {
	return &cli.Command{
		Name:  "destination",
		Usage: "Select and inspect backup destinations",
		Commands: []*cli.Command{
			destinationSetCommand(),
			destinationShowCommand(),
		},
	}
}

func destinationSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Select the destination for a category",
		ArgsUsage: "<category> <local|drive>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "directory for the local destination (required for local)",
			},
		},
		Action: destinationSetAction,
	}
}

func destinationShowCommand() *cli.Command {
	return &cli.Command{
		Name:   "show",
		Usage:  "Show the selected destination per category",
		Action: destinationShowAction,
	}
}

func destinationSetAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	args := cmd.Args()
	if args.Len() != 2 {
		return fmt.Errorf("expected <category> <local|drive>, got %d arguments", args.Len())
	}
	category, kindArg := args.Get(0), args.Get(1)

	if _, ok := cfg.Backup.Categories[category]; !ok {
		return fmt.Errorf("unknown category %q (configured: %v)", category, categoryNames(cfg))
	}

	var kind destination.Kind
	switch kindArg {
	case "local":
		kind = destination.KindLocal
	case "drive":
		kind = destination.KindDrive
	default:
		return fmt.Errorf("unknown destination %q, expected local or drive", kindArg)
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := destination.Select(application.Prefs(), category, kind, cmd.String("path")); err != nil {
		return err
	}

	fmt.Printf("Category %s now backs up to %s\n", category, kindArg)
	if kind == destination.KindDrive {
		fmt.Println("Run 'nightvault auth login' first if you have not linked a Google account yet")
	}
	return nil
}

func destinationShowAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	for _, category := range categoryNames(cfg) {
		kind, err := destination.Selected(application.Prefs(), category)
		switch {
		case errors.Is(err, destination.ErrNotConfigured):
			fmt.Printf("%-12s not configured\n", category)
			continue
		case err != nil:
			return fmt.Errorf("category %s: %w", category, err)
		}

		switch kind {
		case destination.KindLocal:
			path := application.Prefs().String(prefs.LocalDirPath(category))
			fmt.Printf("%-12s local  %s\n", category, path)
		case destination.KindDrive:
			fmt.Printf("%-12s drive  folder %s-%s\n", category, cfg.Backup.DriveFolder, category)
		}
	}
	return nil
}

func categoryNames(cfg *app.Config) []string {
	names := make([]string, 0, len(cfg.Backup.Categories))
	for name := range cfg.Backup.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
