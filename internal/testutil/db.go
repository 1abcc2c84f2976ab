package testutil

import (
	"path/filepath"
	"testing"

	"raffle-ledger/internal/config"
	"raffle-ledger/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// GetEmptyTestDB opens a migrated SQLite database in a per-test directory.
// The connection pool is closed when the test finishes.
func GetEmptyTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Init(config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "raffle_test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}
