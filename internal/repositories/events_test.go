package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

func TestEventRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("UpsertPending collapses repeated updates", func(t *testing.T) {
		f := newFixture(t)

		var last *models.ScrobbleEvent
		for chapter := 1.0; chapter <= 5; chapter++ {
			last = models.NewScrobbleEvent("u1", "s1", f.library.ID, models.ReadProgress{Chapter: chapter})
			require.NoError(t, f.events.UpsertPending(ctx, last))
		}

		pending, err := f.events.FetchPending(ctx, models.ChapterRead)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, models.ReadProgress{Chapter: 5}, pending[0].Payload())
		assert.Equal(t, pending[0].ID(), last.ID())
	})

	t.Run("UpsertPending keeps id and creation order", func(t *testing.T) {
		f := newFixture(t)

		first := models.NewScrobbleEvent("u1", "s1", f.library.ID, models.Rating{Score: 2})
		require.NoError(t, f.events.UpsertPending(ctx, first))
		other := models.NewScrobbleEvent("u2", "s1", f.library.ID, models.Rating{Score: 3})
		require.NoError(t, f.events.UpsertPending(ctx, other))

		again := models.NewScrobbleEvent("u1", "s1", f.library.ID, models.Rating{Score: 4})
		require.NoError(t, f.events.UpsertPending(ctx, again))
		assert.Equal(t, first.ID(), again.ID())
		assert.Equal(t, first.Sequence(), again.Sequence())

		pending, err := f.events.FetchPending(ctx, models.ScoreUpdated)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "u1", pending[0].UserID())
		assert.Equal(t, models.Rating{Score: 4}, pending[0].Payload())
	})

	t.Run("Different types do not collide", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.events.UpsertPending(ctx, models.NewScrobbleEvent("u1", "s1", f.library.ID, models.WantToRead{Wanted: true})))
		require.NoError(t, f.events.UpsertPending(ctx, models.NewScrobbleEvent("u1", "s1", f.library.ID, models.WantToRead{Wanted: false})))
		require.NoError(t, f.events.UpsertPending(ctx, models.NewScrobbleEvent("u1", "s1", f.library.ID, models.Review{Title: "t", Body: "b"})))

		all, err := f.events.List(ctx, map[string]any{"pending": true})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		reviews, err := f.events.List(ctx, map[string]any{"type": models.ReviewUpdated})
		require.NoError(t, err)
		require.Len(t, reviews, 1)
		assert.Equal(t, models.Review{Title: "t", Body: "b"}, reviews[0].Payload())
	})

	t.Run("RemovePending", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.events.UpsertPending(ctx, models.NewScrobbleEvent("u1", "s1", f.library.ID, models.ReadProgress{Chapter: 1})))

		removed, err := f.events.RemovePending(ctx, "u1", "s1", models.ChapterRead)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = f.events.RemovePending(ctx, "u1", "s1", models.ChapterRead)
		require.NoError(t, err)
		assert.False(t, removed)

		_, err = f.events.GetPending(ctx, "u1", "s1", models.ChapterRead)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("Processed events start a new pending row", func(t *testing.T) {
		f := newFixture(t)
		evt := models.NewScrobbleEvent("u1", "s1", f.library.ID, models.ReadProgress{Chapter: 1})
		require.NoError(t, f.events.UpsertPending(ctx, evt))

		batch := f.events.NewBatch()
		require.NoError(t, batch.MarkProcessed(evt, time.Now()))
		require.NoError(t, batch.Commit(ctx))

		next := models.NewScrobbleEvent("u1", "s1", f.library.ID, models.ReadProgress{Chapter: 2})
		require.NoError(t, f.events.UpsertPending(ctx, next))
		assert.NotEqual(t, evt.ID(), next.ID())

		stored, err := f.events.Get(ctx, evt.ID())
		require.NoError(t, err)
		assert.True(t, stored.Processed())
		assert.Equal(t, models.ReadProgress{Chapter: 1}, stored.Payload())
	})

	t.Run("Retention boundary", func(t *testing.T) {
		f := newFixture(t)
		now := time.Now().UTC()
		retention := 7 * 24 * time.Hour

		old := models.NewScrobbleEvent("u1", "s1", f.library.ID, models.ReadProgress{Chapter: 1})
		recent := models.NewScrobbleEvent("u1", "s2", f.library.ID, models.ReadProgress{Chapter: 1})
		require.NoError(t, f.events.UpsertPending(ctx, old))
		require.NoError(t, f.events.UpsertPending(ctx, recent))

		batch := f.events.NewBatch()
		require.NoError(t, batch.MarkProcessed(old, now.Add(-retention-time.Second)))
		require.NoError(t, batch.MarkProcessed(recent, now.Add(-6*24*time.Hour)))
		require.NoError(t, batch.Commit(ctx))

		expired, err := f.events.FetchProcessedOlderThan(ctx, retention)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, old.ID(), expired[0].ID())

		deleted, err := f.events.DeleteProcessedOlderThan(ctx, now.Add(-retention))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = f.events.Get(ctx, old.ID())
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = f.events.Get(ctx, recent.ID())
		assert.NoError(t, err)
	})

	t.Run("DeletePendingForUsersWithoutCredential", func(t *testing.T) {
		f := newFixture(t)
		active := f.user(t, "active", "token")
		lapsed := f.user(t, "lapsed", "")

		require.NoError(t, f.events.UpsertPending(ctx, models.NewScrobbleEvent(active.ID(), "s1", f.library.ID, models.Rating{Score: 1})))
		require.NoError(t, f.events.UpsertPending(ctx, models.NewScrobbleEvent(lapsed.ID(), "s1", f.library.ID, models.Rating{Score: 1})))
		require.NoError(t, f.events.UpsertPending(ctx, models.NewScrobbleEvent("deleted-user", "s1", f.library.ID, models.Rating{Score: 1})))

		deleted, err := f.events.DeletePendingForUsersWithoutCredential(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		remaining, err := f.events.FetchPending(ctx, models.ScoreUpdated)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, active.ID(), remaining[0].UserID())
	})
}

func TestBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit applies staged writes together", func(t *testing.T) {
		f := newFixture(t)
		series := f.addSeries(t, "Berserk")

		ok := models.NewScrobbleEvent("u1", series.ID(), f.library.ID, models.ReadProgress{Chapter: 1})
		bad := models.NewScrobbleEvent("u2", series.ID(), f.library.ID, models.ReadProgress{Chapter: 1})
		require.NoError(t, f.events.UpsertPending(ctx, ok))
		require.NoError(t, f.events.UpsertPending(ctx, bad))

		batch := f.events.NewBatch()
		now := time.Now()
		require.NoError(t, batch.MarkProcessed(ok, now))
		require.NoError(t, batch.MarkErrored(bad, models.CommentUnknownSeries, now))
		batch.Quarantine(models.NewQuarantine(series.ID(), f.library.ID, models.CommentUnknownSeries, "404"))
		assert.Equal(t, 3, batch.Len())

		pending, err := f.events.FetchPending(ctx, models.ChapterRead)
		require.NoError(t, err)
		assert.Len(t, pending, 2, "nothing is written before commit")

		require.NoError(t, batch.Commit(ctx))
		assert.Zero(t, batch.Len())

		pending, err = f.events.FetchPending(ctx, models.ChapterRead)
		require.NoError(t, err)
		assert.Empty(t, pending)

		stored, err := f.events.Get(ctx, bad.ID())
		require.NoError(t, err)
		assert.True(t, stored.Errored())
		assert.Equal(t, models.CommentUnknownSeries, stored.ErrorMessage())

		quarantined, err := f.errors.HasQuarantine(ctx, series.ID())
		require.NoError(t, err)
		assert.True(t, quarantined)
	})

	t.Run("Processed events are immutable", func(t *testing.T) {
		f := newFixture(t)
		evt := models.NewScrobbleEvent("u1", "s1", f.library.ID, models.ReadProgress{Chapter: 1})
		require.NoError(t, f.events.UpsertPending(ctx, evt))

		batch := f.events.NewBatch()
		require.NoError(t, batch.MarkProcessed(evt, time.Now()))
		assert.ErrorIs(t, batch.MarkErrored(evt, "late", time.Now()), shared.ErrEventImmutable)
		assert.ErrorIs(t, f.events.UpsertPending(ctx, evt), shared.ErrEventImmutable)
	})

	t.Run("Row edited after it was read stays pending", func(t *testing.T) {
		f := newFixture(t)
		evt := models.NewScrobbleEvent("u1", "s1", f.library.ID, models.Rating{Score: 3})
		require.NoError(t, f.events.UpsertPending(ctx, evt))

		fetched, err := f.events.FetchPending(ctx, models.ScoreUpdated)
		require.NoError(t, err)
		require.Len(t, fetched, 1)

		edit := models.NewScrobbleEvent("u1", "s1", f.library.ID, models.Rating{Score: 5})
		edit.SetUpdatedAt(fetched[0].UpdatedAt().Add(time.Second))
		require.NoError(t, f.events.UpsertPending(ctx, edit))
		assert.Equal(t, evt.ID(), edit.ID())

		batch := f.events.NewBatch()
		require.NoError(t, batch.MarkProcessed(fetched[0], time.Now()))
		require.NoError(t, batch.Commit(ctx))
		assert.Equal(t, 1, batch.Superseded())

		stored, err := f.events.Get(ctx, evt.ID())
		require.NoError(t, err)
		assert.True(t, stored.Pending())
		assert.Equal(t, models.Rating{Score: 5}, stored.Payload())

		batch = f.events.NewBatch()
		require.NoError(t, batch.MarkProcessed(stored, time.Now()))
		require.NoError(t, batch.Commit(ctx))
		assert.Zero(t, batch.Superseded())

		stored, err = f.events.Get(ctx, evt.ID())
		require.NoError(t, err)
		assert.True(t, stored.Processed())
	})

	t.Run("Empty commit", func(t *testing.T) {
		f := newFixture(t)
		assert.NoError(t, f.events.NewBatch().Commit(ctx))
	})
}

func TestErrorRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("One record per reason", func(t *testing.T) {
		f := newFixture(t)
		series := f.addSeries(t, "Berserk")

		created, err := f.errors.Create(ctx, models.NewQuarantine(series.ID(), f.library.ID, models.CommentUnknownSeries, "first"))
		require.NoError(t, err)
		assert.True(t, created)

		created, err = f.errors.Create(ctx, models.NewQuarantine(series.ID(), f.library.ID, models.CommentUnknownSeries, "second"))
		require.NoError(t, err)
		assert.False(t, created)

		records, err := f.errors.List(ctx, map[string]any{"series_id": series.ID()})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "first", records[0].Details())
	})

	t.Run("Credential errors do not quarantine", func(t *testing.T) {
		f := newFixture(t)
		series := f.addSeries(t, "Berserk")

		_, err := f.errors.Create(ctx, models.NewCredentialError(series.ID(), f.library.ID, "u1", models.CommentCredentialExpired, ""))
		require.NoError(t, err)

		quarantined, err := f.errors.HasQuarantine(ctx, series.ID())
		require.NoError(t, err)
		assert.False(t, quarantined)

		ids, err := f.errors.FetchQuarantined(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		byKind, err := f.errors.List(ctx, map[string]any{"kind": models.ErrorKindCredential})
		require.NoError(t, err)
		assert.Len(t, byKind, 1)
	})

	t.Run("Delete and DeleteForSeries", func(t *testing.T) {
		f := newFixture(t)
		series := f.addSeries(t, "Berserk")

		rec := models.NewQuarantine(series.ID(), f.library.ID, models.CommentUnknownSeries, "")
		_, err := f.errors.Create(ctx, rec)
		require.NoError(t, err)

		stored, err := f.errors.Get(ctx, rec.ID())
		require.NoError(t, err)
		assert.Equal(t, models.ErrorKindSeries, stored.Kind())

		require.NoError(t, f.errors.Delete(ctx, rec.ID()))
		assert.ErrorIs(t, f.errors.Delete(ctx, rec.ID()), shared.ErrNotFound)

		_, err = f.errors.Create(ctx, models.NewQuarantine(series.ID(), f.library.ID, models.CommentUnknownSeries, ""))
		require.NoError(t, err)
		_, err = f.errors.Create(ctx, models.NewCredentialError(series.ID(), f.library.ID, "u1", models.CommentCredentialExpired, ""))
		require.NoError(t, err)

		deleted, err := f.errors.DeleteForSeries(ctx, series.ID())
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)
	})

	t.Run("DeleteOrphaned", func(t *testing.T) {
		f := newFixture(t)
		series := f.addSeries(t, "Berserk")

		_, err := f.errors.Create(ctx, models.NewQuarantine(series.ID(), f.library.ID, models.CommentUnknownSeries, ""))
		require.NoError(t, err)
		_, err = f.errors.Create(ctx, models.NewQuarantine("gone", f.library.ID, models.CommentUnknownSeries, ""))
		require.NoError(t, err)

		deleted, err := f.errors.DeleteOrphaned(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		ids, err := f.errors.FetchQuarantined(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{series.ID()}, ids)
	})
}
