package database

import (
	"context"
	"path/filepath"
	"testing"

	"agora/internal/config"
	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, configurePool(db, &config.Config{DBMaxOpenConns: 10}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestConfigurePool_Defaults(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, configurePool(db, &config.Config{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 25, sqlDB.Stats().MaxOpenConnections)
}

func TestConnect_SQLiteAppliesSchema(t *testing.T) {
	cfg := &config.Config{
		DBDriver:   "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "agora.db"),
		Env:        "test",
	}

	db, err := Connect(context.Background(), cfg)
	require.NoError(t, err)

	for _, model := range PersistentModels() {
		assert.True(t, db.Migrator().HasTable(model), "%T table missing", model)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	status, err := GetSchemaStatus(context.Background(), db, cfg)
	require.NoError(t, err)
	assert.Empty(t, status.PendingMigrations)
}

func TestGormConfig_TranslatesDuplicateKeys(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "dup.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UserProgression{}))

	row := &models.UserProgression{ID: "u1", Level: 1}
	require.NoError(t, db.Create(row).Error)

	err = db.Create(&models.UserProgression{ID: "u1", Level: 1}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
