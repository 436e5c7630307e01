package database

import (
	"testing"

	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistentModels_CoverEngineTables(t *testing.T) {
	tables := map[string]bool{}
	for _, model := range PersistentModels() {
		tabler, ok := model.(interface{ TableName() string })
		require.True(t, ok, "%T should name its table", model)
		tables[tabler.TableName()] = true
	}

	for _, kind := range []models.EntityKind{models.KindPost, models.KindComment, models.KindProgression} {
		assert.True(t, tables[string(kind)], "missing table %s", kind)
	}
}

func TestRegisteredMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "000001_engine_tables", migrations[0].String())
	assert.Contains(t, migrations[0].UpScript, "CREATE TABLE IF NOT EXISTS comments")
	assert.NotNil(t, GetMigrationByVersion(1))
	assert.Nil(t, GetMigrationByVersion(999))
}
