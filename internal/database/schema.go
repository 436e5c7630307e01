package database

import (
	"context"
	"fmt"
	"log/slog"

	"agora/internal/config"
	"agora/internal/middleware"

	"gorm.io/gorm"
)

// SchemaStatus describes migration state for the migrate status command.
type SchemaStatus struct {
	Driver            string
	Environment       string
	AppliedVersions   []int
	PendingMigrations []Migration
}

// ApplySchema runs the versioned SQL migrations on Postgres and GORM
// AutoMigrate on SQLite, whose dialect the SQL scripts do not target.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	if cfg.DBDriver == "sqlite" {
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("env", cfg.Env))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return nil
	}

	if err := RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run sql migrations: %w", err)
	}
	return nil
}

// GetSchemaStatus lists applied and pending SQL migrations.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	status := &SchemaStatus{
		Driver:      cfg.DBDriver,
		Environment: cfg.Env,
	}
	if cfg.DBDriver == "sqlite" {
		return status, nil
	}

	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied

	appliedSet := make(map[int]bool, len(applied))
	for _, version := range applied {
		appliedSet[version] = true
	}
	for _, m := range GetMigrations() {
		if !appliedSet[m.Version] {
			status.PendingMigrations = append(status.PendingMigrations, m)
		}
	}

	return status, nil
}
