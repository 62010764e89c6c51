package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, RunMigrations(ctx, db, nil))

		version, err := MigrationVersion(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)

		for _, table := range []string{"users", "series", "scrobble_events", "scrobble_errors"} {
			_, err = db.Exec("SELECT 1 FROM " + table + " LIMIT 1")
			assert.NoError(t, err, "%s table should exist after migrations", table)
		}

		require.NoError(t, RollbackMigration(ctx, db))

		version, err = MigrationVersion(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)

		_, err = db.Exec("SELECT 1 FROM scrobble_events LIMIT 1")
		assert.Error(t, err, "scrobble_events should be dropped by rollback")
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, RunMigrations(ctx, db, nil))
		require.NoError(t, RunMigrations(ctx, db, nil))

		version, err := MigrationVersion(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
	})

	t.Run("Pending index allows one unprocessed row", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		require.NoError(t, err)
		defer db.Close()
		require.NoError(t, RunMigrations(ctx, db, nil))

		insert := `INSERT INTO scrobble_events (id, sequence, user_id, series_id, library_id, event_type, created_at, updated_at, processed)
			VALUES (?, 1, 'u', 's', 'l', 'ChapterRead', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, ?)`

		_, err = db.Exec(insert, "a", 0)
		require.NoError(t, err)
		_, err = db.Exec(insert, "b", 0)
		assert.Error(t, err, "second pending row for the same key must violate the index")
		_, err = db.Exec(insert, "c", 1)
		assert.NoError(t, err, "processed rows are outside the partial index")
	})
}
