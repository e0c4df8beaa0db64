package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_CreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	db, err := OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"runs", "run_metadata", "run_waits"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?;", table,
		).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	assert.Error(t, err)
}

func TestValidateSQLiteFilesystem_NetworkMount(t *testing.T) {
	detector := func(string) (string, error) { return "nfs", nil }
	err := validateSQLiteFilesystemWithDetector("/tmp/whatever/runs.db", detector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network filesystem")
}

func TestValidateSQLiteFilesystem_LocalDisk(t *testing.T) {
	detector := func(string) (string, error) { return "ext4", nil }
	err := validateSQLiteFilesystemWithDetector(filepath.Join(t.TempDir(), "runs.db"), detector)
	assert.NoError(t, err)
}
