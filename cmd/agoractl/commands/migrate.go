package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"agora/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations.

Subcommands:
  up      - Apply pending migrations
  down    - Roll back one migration version
  status  - Show migration status`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := connect(cmd.Context(), false)
		if err != nil {
			return err
		}
		if err := database.ApplySchema(cmd.Context(), db, cfg); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ schema up to date")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down <version>",
	Short: "Roll back a migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		_, db, err := connect(cmd.Context(), false)
		if err != nil {
			return err
		}
		if err := database.RollbackMigration(cmd.Context(), db, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ rolled back migration %d\n", version)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := connect(cmd.Context(), false)
		if err != nil {
			return err
		}
		status, err := database.GetSchemaStatus(cmd.Context(), db, cfg)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "driver\t%s\n", status.Driver)
		fmt.Fprintf(w, "env\t%s\n", status.Environment)
		fmt.Fprintf(w, "applied\t%d\n", len(status.AppliedVersions))
		fmt.Fprintf(w, "pending\t%d\n", len(status.PendingMigrations))
		for _, m := range status.PendingMigrations {
			fmt.Fprintf(w, "  %06d\t%s\n", m.Version, m.Name)
		}
		return w.Flush()
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
