package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateEmbedded())
	require.NoError(t, ValidateDir("migrations"))
}

func TestMigrationsUpAndDownOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	ctx := context.Background()

	require.NoError(t, Run(ctx, sqlDB, "sqlite", "up"))
	for _, table := range []string{"days", "recordings", "audio_blobs", "audio_blob_chunks"} {
		require.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
	var indexes int64
	require.NoError(t, conn.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = ?", "ux_recordings_day_user_field").Scan(&indexes).Error)
	require.Equal(t, int64(1), indexes)

	version, err := Version(ctx, sqlDB, "sqlite")
	require.NoError(t, err)
	require.Equal(t, int64(20261001090200), version)

	require.NoError(t, MigrateToVersion(ctx, sqlDB, "sqlite", "20261001090000"))
	require.True(t, conn.Migrator().HasTable("days"))
	require.False(t, conn.Migrator().HasTable("recordings"))
	require.False(t, conn.Migrator().HasTable("audio_blobs"))
}

func TestRecordingsMigrationConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_recordings.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)
	for _, sub := range []string{
		"REFERENCES days(id) ON DELETE CASCADE",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_recordings_day_user_field ON recordings (day_id, user_id, field)",
		"DROP TABLE IF EXISTS recordings",
	} {
		require.Contains(t, content, sub)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC)
	path, err := createSQLMigration(dir, "Add Day Notes!", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20261014083000_add_day_notes.sql"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "-- +goose Up"))
	require.NoError(t, ValidateDir(dir))

	_, err = createSQLMigration(dir, "Add Day Notes!", now)
	require.Error(t, err, "same version must not be overwritten")
	_, err = createSQLMigration(dir, "!!!", now)
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}
