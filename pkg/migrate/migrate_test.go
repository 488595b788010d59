package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db/dbtest"
	"github.com/codeshop/codeshop-backend/pkg/logger"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(Embedded(), "migrations/*_"+suffix+".sql")
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)
	data, err := fs.ReadFile(Embedded(), matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded(), "migrations"))
	require.NoError(t, ValidateDir("migrations"))
}

func TestStockItemsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_stock_items")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS stock_items",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_stock_items_code ON stock_items (product_id, variant_key, code)",
		"WHERE is_used = false",
		"REFERENCES products(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS stock_items",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestProductsMigrationStoresTriStateStock(t *testing.T) {
	content := readMigration(t, "create_products")
	for _, sub := range []string{
		"stock_count integer NULL",
		"stock_unlimited boolean NOT NULL DEFAULT false",
		"CHECK (stock_count IS NULL OR stock_count >= 0)",
		"CREATE TABLE IF NOT EXISTS product_variants",
		"DROP TABLE IF EXISTS product_variants",
	} {
		assert.Contains(t, content, sub)
	}
	assert.NotContains(t, content, "99999")
}

func TestAssignmentsMigrationKeepsHistoryOnDelete(t *testing.T) {
	content := readMigration(t, "create_stock_assignments")
	assert.Contains(t, content, "REFERENCES stock_items(id) ON DELETE SET NULL")
	assert.Contains(t, content, "code text NOT NULL")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Stock Notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_stock_notes.sql"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "-- +goose Down")
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestCreateRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	path, err := createAt(dir, "stock notes", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260301090000_stock_notes.sql"), path)

	_, err = createAt(dir, "stock notes", now)
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "add_stock_notes", slugify("  Add Stock--Notes! "))
	assert.Equal(t, "v2_codes", slugify("v2 codes"))
	assert.Empty(t, slugify("!!!"))
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_no_down.sql"), []byte("-- +goose Up\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_dup.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
}

func TestOpenRequiresDB(t *testing.T) {
	_, err := Open(nil, DefaultDir)
	assert.Error(t, err)
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_no_down.sql"), []byte("-- +goose Up\n"), 0o644))
	assert.Error(t, ValidateDir(dir))

	assert.Error(t, ValidateDir(t.TempDir()))
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20260301090000")
	require.NoError(t, err)
	assert.EqualValues(t, 20260301090000, v)

	_, err = ParseVersion("2026")
	assert.Error(t, err)
	_, err = ParseVersion("2026030109000x")
	assert.Error(t, err)
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "prod"}, FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true}}
	require.NoError(t, MaybeRunDev(context.Background(), cfg, logger.New(logger.Options{ServiceName: "test"}), nil))
}

func TestMaybeRunDevAutoMigratesSQLite(t *testing.T) {
	client := dbtest.Open(t)
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		DB:           config.DBConfig{Driver: "sqlite"},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	require.NoError(t, MaybeRunDev(context.Background(), cfg, logger.New(logger.Options{ServiceName: "test"}), client))
	assert.True(t, client.DB().Migrator().HasTable("stock_items"))
}
