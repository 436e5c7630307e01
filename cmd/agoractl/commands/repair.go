package commands

import (
	"encoding/json"
	"fmt"

	"agora/internal/repository"
	"agora/internal/service"
	"agora/internal/store"

	"github.com/spf13/cobra"
)

var repairScope service.RepairScope

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Recompute denormalized comment counts",
	Long: `Recompute every post's comment_count from the comments table and fix
the ones that drifted.

Examples:
  agoractl repair                      # Repair every post
  agoractl repair --post ID --post ID  # Repair specific posts
  agoractl repair --dry-run --json     # Report drift without writing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, db, err := connect(ctx, true)
		if err != nil {
			return err
		}

		st := store.New(db, store.Options{
			MaxAttempts:    cfg.TxMaxAttempts,
			InitialBackoff: cfg.TxBackoffInitial(),
			MaxBackoff:     cfg.TxBackoffMax(),
		})
		batch := repairScope.BatchSize
		if batch <= 0 {
			batch = cfg.RepairBatchSize
		}
		repair := service.NewRepairService(st, repository.NewPostRepository(db), repository.NewCommentRepository(db), batch)

		report, err := repair.Run(ctx, repairScope)
		if err != nil {
			return fmt.Errorf("repair failed: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		for _, c := range report.Corrections {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d\n", c.PostID, c.Stored, c.Actual)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d corrected=%d failed=%d dry_run=%t\n",
			report.Scanned, report.Corrected, report.Failed, report.DryRun)
		if report.Failed > 0 {
			return fmt.Errorf("%d posts could not be repaired", report.Failed)
		}
		return nil
	},
}

func init() {
	repairCmd.Flags().StringSliceVar(&repairScope.PostIDs, "post", nil, "Post id to repair (repeatable)")
	repairCmd.Flags().IntVar(&repairScope.BatchSize, "batch", 0, "Posts per batch (default REPAIR_BATCH_SIZE)")
	repairCmd.Flags().BoolVar(&repairScope.DryRun, "dry-run", false, "Report drift without writing")
}
