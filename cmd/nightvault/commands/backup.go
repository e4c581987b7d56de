package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/nightvault/nightvault/internal/app"
)

// backupCommand returns the 'backup' subcommand for one-shot backup
// operations.
func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Create, list, restore, and prune backups",
		Commands: []*cli.Command{
			backupCreateCommand(),
			backupListCommand(),
			backupRestoreCommand(),
			backupPruneCommand(),
		},
	}
}

func backupCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Snapshot a category's source file to its destination",
		ArgsUsage: "<category>",
		Action:    backupCreateAction,
	}
}

func backupListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List recorded backups for a category",
		ArgsUsage: "<category>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "list what the destination actually holds instead of the local catalog",
			},
		},
		Action: backupListAction,
	}
}

func backupRestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Download a backup and verify its checksum",
		ArgsUsage: "<backup-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output",
				Usage: "target path (defaults to the backup's file name in the current directory)",
			},
		},
		Action: backupRestoreAction,
	}
}

func backupPruneCommand() *cli.Command {
	return &cli.Command{
		Name:      "prune",
		Usage:     "Delete old backups, keeping the newest N",
		ArgsUsage: "<category>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keep",
				Usage: "number of backups to keep",
				Value: 5,
			},
		},
		Action: backupPruneAction,
	}
}

// openApp is the shared prologue of the backup actions: config, logging, and
// a ready App the caller must Close.
func openApp(ctx context.Context, cmd *cli.Command) (*app.App, func(), error) {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}

	application, err := app.New(cfg)
	if err != nil {
		shutdown(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		application.Close()
		shutdown(ctx)
	}
	return application, cleanup, nil
}

func requireCategory(cmd *cli.Command, application *app.App) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one <category> argument")
	}
	category := cmd.Args().First()
	if _, ok := application.Config().Backup.Categories[category]; !ok {
		return "", fmt.Errorf("unknown category %q", category)
	}
	return category, nil
}

func backupCreateAction(ctx context.Context, cmd *cli.Command) error {
	application, cleanup, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	category, err := requireCategory(cmd, application)
	if err != nil {
		return err
	}

	source := application.Config().Backup.Categories[category].Source
	record, err := application.Backups().Create(ctx, category, source)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	fmt.Printf("Created backup %s (%s, %d bytes) as %s\n",
		record.ID, record.Name, record.Size, record.DestinationKind)
	return nil
}

func backupListAction(ctx context.Context, cmd *cli.Command) error {
	application, cleanup, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	category, err := requireCategory(cmd, application)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if cmd.Bool("remote") {
		entries, err := application.Backups().ListDestination(ctx, category)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "NAME\tSIZE\tCREATED")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%d\t%s\n",
				entry.Name, entry.Size, entry.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	}

	records, err := application.Backups().List(ctx, category)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tNAME\tDEST\tSIZE\tCREATED")
	for _, record := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			record.ID, record.Name, record.DestinationKind, record.Size,
			record.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func backupRestoreAction(ctx context.Context, cmd *cli.Command) error {
	application, cleanup, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one <backup-id> argument")
	}
	id := cmd.Args().First()

	outPath := cmd.String("output")
	if outPath == "" {
		record, err := application.Catalog().Get(ctx, id)
		if err != nil {
			return err
		}
		outPath = record.Name
	}

	record, err := application.Backups().Restore(ctx, id, outPath)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	fmt.Printf("Restored %s to %s (checksum verified)\n", record.Name, outPath)
	return nil
}

func backupPruneAction(ctx context.Context, cmd *cli.Command) error {
	application, cleanup, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	category, err := requireCategory(cmd, application)
	if err != nil {
		return err
	}

	removed, err := application.Backups().Prune(ctx, category, int(cmd.Int("keep")))
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	if len(removed) == 0 {
		fmt.Println("Nothing to prune")
		return nil
	}
	for _, record := range removed {
		fmt.Printf("Removed %s (%s)\n", record.ID, record.Name)
	}
	return nil
}
