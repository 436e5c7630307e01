// Package commands implements the agoractl subcommands.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agora/internal/config"
	"agora/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	// Global flags
	jsonOutput bool
	driver     string
)

var rootCmd = &cobra.Command{
	Use:   "agoractl",
	Short: "Maintenance tool for the Agora engine",
	Long: `agoractl runs schema migrations, seeds development data and repairs
denormalized comment counts.

Connection settings come from the same environment and .env file the
server reads.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "Override DB_DRIVER (postgres or sqlite)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(repairCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if driver != "" {
		cfg.DBDriver = driver
	}
	return cfg, nil
}

// connect opens the database. applySchema runs migrations first.
func connect(ctx context.Context, applySchema bool) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	if applySchema {
		db, err = database.Connect(ctx, cfg)
	} else {
		db, err = database.Open(cfg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, db, nil
}
