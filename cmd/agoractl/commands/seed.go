package commands

import (
	"fmt"

	"agora/internal/seed"

	"github.com/spf13/cobra"
)

var (
	seedOpts   seed.Options
	driftPosts int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with demo data",
	Long: `Populate the database with authors, posts, threaded comments and likes.

Examples:
  agoractl seed --posts 200 --clean     # Fresh demo data
  agoractl seed --drift 10              # Also corrupt 10 comment counts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, db, err := connect(ctx, true)
		if err != nil {
			return err
		}

		seeder := seed.NewSeeder(db, seedOpts)
		summary, err := seeder.Seed(ctx)
		if err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "authors=%d posts=%d comments=%d replies=%d\n",
			summary.Authors, summary.Posts, summary.Comments, summary.Replies)

		if driftPosts > 0 {
			ids, err := seeder.InjectDrift(ctx, driftPosts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drifted=%d\n", len(ids))
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedOpts.NumAuthors, "authors", 10, "Number of authors")
	seedCmd.Flags().IntVar(&seedOpts.NumPosts, "posts", 50, "Number of posts")
	seedCmd.Flags().IntVar(&seedOpts.MaxCommentsPerPost, "max-comments", 8, "Maximum comments per post")
	seedCmd.Flags().IntVar(&seedOpts.ReplyPercent, "reply-percent", 40, "Chance out of 100 that a comment is a reply")
	seedCmd.Flags().IntVar(&seedOpts.MaxDays, "max-days", 90, "Spread timestamps over this many days")
	seedCmd.Flags().Int64Var(&seedOpts.RandSeed, "rand-seed", 0, "Random seed, 0 for random")
	seedCmd.Flags().BoolVar(&seedOpts.ShouldClean, "clean", false, "Delete existing content first")
	seedCmd.Flags().IntVar(&driftPosts, "drift", 0, "Corrupt the comment count of this many posts")
}
