package repositories

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, shared.RunMigrations(context.Background(), db, nil), "failed to run migrations")

	return db
}

type fixture struct {
	db      *sql.DB
	users   *UserRepository
	series  *SeriesRepository
	events  *EventRepository
	errors  *ErrorRepository
	library *models.Library
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	f := &fixture{
		db:     db,
		users:  NewUserRepository(db),
		series: NewSeriesRepository(db),
		events: NewEventRepository(db),
		errors: NewErrorRepository(db),
	}

	f.library = &models.Library{Name: "Manga", AllowScrobbling: true}
	require.NoError(t, f.series.CreateLibrary(f.library))

	return f
}

func (f *fixture) user(t *testing.T, name, credential string) *models.User {
	t.Helper()
	user := models.NewUser(name, credential)
	require.NoError(t, f.users.Create(user))
	return user
}

func (f *fixture) addSeries(t *testing.T, name string) *models.Series {
	t.Helper()
	series := models.NewSeries(f.library.ID, name, models.FormatManga)
	require.NoError(t, f.series.Create(series))
	return series
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader", "token")
		assert.NotEmpty(t, user.ID())

		retrieved, err := f.users.Get(user.ID())
		require.NoError(t, err)
		assert.Equal(t, "reader", retrieved.Name())
		assert.Equal(t, "token", retrieved.Credential())
		assert.False(t, retrieved.BackfillCompleted())

		byName, err := f.users.GetByName("reader")
		require.NoError(t, err)
		assert.Equal(t, user.ID(), byName.ID())
	})

	t.Run("Duplicate name", func(t *testing.T) {
		f := newFixture(t)
		f.user(t, "reader", "")
		assert.Error(t, f.users.Create(models.NewUser("reader", "")))
	})

	t.Run("NotFound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.users.Get("missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.ErrorIs(t, f.users.Delete("missing"), shared.ErrNotFound)
		assert.ErrorIs(t, f.users.SetCredential(ctx, "missing", "x"), shared.ErrNotFound)
	})

	t.Run("Backfill flag", func(t *testing.T) {
		f := newFixture(t)
		withCredential := f.user(t, "a", "token")
		f.user(t, "b", "")

		pending, err := f.users.ListNeedingBackfill(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, withCredential.ID(), pending[0].ID())

		require.NoError(t, f.users.MarkBackfilled(ctx, withCredential.ID(), withCredential.CreatedAt()))

		pending, err = f.users.ListNeedingBackfill(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)

		stored, err := f.users.Get(withCredential.ID())
		require.NoError(t, err)
		assert.True(t, stored.BackfillCompleted())
	})

	t.Run("List by credential", func(t *testing.T) {
		f := newFixture(t)
		f.user(t, "a", "token")
		f.user(t, "b", "")

		without, err := f.users.List(map[string]any{"has_credential": false})
		require.NoError(t, err)
		require.Len(t, without, 1)
		assert.Equal(t, "b", without[0].Name())

		all, err := f.users.List(nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestSeriesRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Get loads library", func(t *testing.T) {
		f := newFixture(t)
		series := f.addSeries(t, "Berserk")

		stored, err := f.series.GetSeries(ctx, series.ID())
		require.NoError(t, err)
		assert.Equal(t, "Berserk", stored.Name())
		assert.True(t, stored.AllowsScrobbling())

		require.NoError(t, f.series.SetLibraryScrobbling(ctx, f.library.ID, false))
		stored, err = f.series.GetSeries(ctx, series.ID())
		require.NoError(t, err)
		assert.False(t, stored.AllowsScrobbling())
	})

	t.Run("UpdateMetadata clears dont match", func(t *testing.T) {
		f := newFixture(t)
		series := f.addSeries(t, "Berserk")
		series.SetDontMatch(true)
		require.NoError(t, f.series.Update(series))

		meta := models.SeriesMetadata{AniListID: 30002, WebLinks: "https://mangadex.org/title/abc"}
		require.NoError(t, f.series.UpdateMetadata(ctx, series.ID(), meta))

		stored, err := f.series.Get(series.ID())
		require.NoError(t, err)
		assert.False(t, stored.DontMatch())
		assert.Equal(t, meta, stored.Metadata())
	})

	t.Run("Progress defaults to zero", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader", "token")
		series := f.addSeries(t, "Berserk")

		p, err := f.series.Progress(ctx, user.ID(), series.ID())
		require.NoError(t, err)
		assert.False(t, p.Started())

		require.NoError(t, f.series.SetProgress(ctx, models.Progress{UserID: user.ID(), SeriesID: series.ID(), Chapter: 5, PagesRead: 100}))
		p, err = f.series.Progress(ctx, user.ID(), series.ID())
		require.NoError(t, err)
		assert.True(t, p.Started())
		assert.Equal(t, 5.0, p.Chapter)
	})

	t.Run("Backfill enumerations respect library setting", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader", "token")
		allowed := f.addSeries(t, "Allowed")

		blocked := &models.Library{Name: "Private", AllowScrobbling: false}
		require.NoError(t, f.series.CreateLibrary(blocked))
		hidden := models.NewSeries(blocked.ID, "Hidden", models.FormatManga)
		require.NoError(t, f.series.Create(hidden))

		for _, s := range []*models.Series{allowed, hidden} {
			require.NoError(t, f.series.SetWantToRead(ctx, user.ID(), s.ID(), true))
			require.NoError(t, f.series.SetRating(ctx, user.ID(), s.ID(), 4))
			require.NoError(t, f.series.SetReview(ctx, user.ID(), s.ID(), "title", "body"))
			require.NoError(t, f.series.SetProgress(ctx, models.Progress{UserID: user.ID(), SeriesID: s.ID(), Chapter: 1, PagesRead: 10}))
		}

		want, err := f.series.WantToRead(ctx, user.ID())
		require.NoError(t, err)
		assert.Equal(t, []string{allowed.ID()}, want)

		ratings, err := f.series.Ratings(ctx, user.ID())
		require.NoError(t, err)
		assert.Equal(t, []models.SeriesRating{{SeriesID: allowed.ID(), Score: 4}}, ratings)

		reviews, err := f.series.Reviews(ctx, user.ID())
		require.NoError(t, err)
		assert.Equal(t, []models.SeriesReview{{SeriesID: allowed.ID(), Title: "title", Body: "body"}}, reviews)

		progress, err := f.series.ProgressSeries(ctx, user.ID())
		require.NoError(t, err)
		assert.Equal(t, []string{allowed.ID()}, progress)

		require.NoError(t, f.series.SetWantToRead(ctx, user.ID(), allowed.ID(), false))
		want, err = f.series.WantToRead(ctx, user.ID())
		require.NoError(t, err)
		assert.Empty(t, want)
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := NextSequence(ctx, db, "scrobble_events")
	require.NoError(t, err)
	second, err := NextSequence(ctx, db, "scrobble_events")
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	t.Run("rolled back with its transaction", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = NextSequence(ctx, tx, "scrobble_events")
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())

		third, err := NextSequence(ctx, db, "scrobble_events")
		require.NoError(t, err)
		assert.Equal(t, second+1, third)
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := NextSequence(ctx, db, "nonexistent")
		assert.Error(t, err)
	})
}
