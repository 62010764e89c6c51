package shared

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	t.Run("memory database enforces foreign keys", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		require.NoError(t, err)
		defer db.Close()

		var enabled int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&enabled))
		assert.Equal(t, 1, enabled)
	})

	t.Run("file database uses WAL", func(t *testing.T) {
		db, err := NewDatabase(filepath.Join(t.TempDir(), "scrobblex.db"))
		require.NoError(t, err)
		defer db.Close()

		var mode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", strings.ToLower(mode))
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := NewDatabase("")
		assert.ErrorIs(t, err, ErrMissingArgument)
	})
}

func TestConfigureDatabase(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "pool.db"))
	require.NoError(t, err)
	defer db.Close()

	ConfigureDatabase(db, 4, 0)
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)

	ConfigureDatabase(db, 0, 2)
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
}

func TestDSN(t *testing.T) {
	assert.NotContains(t, dsn(":memory:"), "_journal_mode")
	assert.Contains(t, dsn("/tmp/x.db"), "_journal_mode=WAL")
	assert.Contains(t, dsn("/tmp/x.db"), "_foreign_keys=on")
}
