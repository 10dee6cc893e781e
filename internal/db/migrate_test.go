package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestMigrations lays down a self-contained two step migration
// set so the machinery can be exercised without the real audit schema.
func writeTestMigrations(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"000001_create_audit_log.up.sql":   "CREATE TABLE audit_log (id TEXT PRIMARY KEY, note TEXT);",
		"000001_create_audit_log.down.sql": "DROP TABLE audit_log;",
		"000002_add_note_index.up.sql":     "CREATE INDEX idx_audit_log_note ON audit_log (note);",
		"000002_add_note_index.down.sql":   "DROP INDEX idx_audit_log_note;",
	}
	for name, sql := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644))
	}
	return dir
}

func openBareDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	require.NoError(t, err)
	return count > 0
}

func TestMigrateUpDown(t *testing.T) {
	db := openBareDB(t)
	dir := writeTestMigrations(t)

	require.NoError(t, db.MigrateUp(dir))

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	assert.True(t, tableExists(t, db, "audit_log"))

	// One step back drops the index but keeps the table.
	require.NoError(t, db.MigrateDown(dir))

	version, _, err = db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.True(t, tableExists(t, db, "audit_log"))
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openBareDB(t)
	dir := writeTestMigrations(t)

	require.NoError(t, db.MigrateUp(dir))
	require.NoError(t, db.MigrateUp(dir), "second up must tolerate no change")
}

func TestMigrateVersion_Fresh(t *testing.T) {
	db := openBareDB(t)
	dir := writeTestMigrations(t)

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}

func TestMigrateTo(t *testing.T) {
	db := openBareDB(t)
	dir := writeTestMigrations(t)

	require.NoError(t, db.MigrateTo(dir, 1))

	version, _, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.True(t, tableExists(t, db, "audit_log"))
}

func TestMigrateForce(t *testing.T) {
	db := openBareDB(t)
	dir := writeTestMigrations(t)

	require.NoError(t, db.MigrateForce(dir, 2))

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	assert.False(t, tableExists(t, db, "audit_log"), "force must not run migrations")
}

func TestBaselineAtVersion(t *testing.T) {
	db := openBareDB(t)
	dir := writeTestMigrations(t)

	require.NoError(t, db.BaselineAtVersion(1))

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	err = db.BaselineAtVersion(2)
	assert.Error(t, err, "baselining twice must be refused")
}

func TestGetLatestMigrationVersion(t *testing.T) {
	dir := writeTestMigrations(t)

	latest, err := GetLatestMigrationVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)
}

func TestGetLatestMigrationVersion_EmptyDir(t *testing.T) {
	_, err := GetLatestMigrationVersion(t.TempDir())
	assert.Error(t, err)
}
