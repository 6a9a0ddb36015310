package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/registry"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/stores"
)

func newSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and maintain the registry snapshot",
		Long: `Inspect and maintain the persisted resource registry.

The registry is stored as a versioned snapshot in the configured backend.
The SQLite backend keeps a history of snapshots which can be listed and
restored.`,
	}

	cmd.AddCommand(newSnapshotShowCommand())
	cmd.AddCommand(newSnapshotCompactCommand())
	cmd.AddCommand(newSnapshotHistoryCommand())
	cmd.AddCommand(newSnapshotRestoreCommand())

	return cmd
}

func newSnapshotShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the registered resources",
		Long: `Show every entity group with its resources in priority order, followed by
the resources no transformer has handled yet. The active resource of each
group is marked with "*".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return printRegistry(cmd.OutOrStdout(), a.registry)
		},
	}
}

func newSnapshotCompactCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Drop uninstalled and stale ignored resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			before := a.registry.ResourceCount()
			if !a.registry.Compact() {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to compact")
				return nil
			}
			if !a.registry.Save(ctx) {
				return fmt.Errorf("failed to save registry")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d resources\n", before-a.registry.ResourceCount())
			return nil
		},
	}
}

func newSnapshotHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List stored snapshots (sqlite backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			db, err := a.sqliteStore()
			if err != nil {
				return err
			}
			history, err := db.History(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), history)
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"ID", "Created", "Size", "Digest"})
			for _, s := range history {
				t.AppendRow(table.Row{s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Size, shortDigest(s.Digest)})
			}
			t.Render()
			return nil
		},
	}
}

func newSnapshotRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Make an earlier snapshot the current one (sqlite backend)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid snapshot id %q", args[0])
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			db, err := a.sqliteStore()
			if err != nil {
				return err
			}
			data, err := db.LoadByID(ctx, id)
			if err != nil {
				return err
			}
			if _, err := registry.DecodeSnapshot(data); err != nil {
				return fmt.Errorf("snapshot %d is not readable: %w", id, err)
			}
			if err := db.Save(ctx, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored snapshot %d\n", id)
			return nil
		},
	}
}

func (a *app) sqliteStore() (*stores.SQLiteStore, error) {
	db, ok := a.store.(*stores.SQLiteStore)
	if !ok {
		return nil, fmt.Errorf("snapshot history requires the sqlite backend, configured backend is %q", a.cfg.Snapshot.Backend)
	}
	return db, nil
}
