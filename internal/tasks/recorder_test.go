package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("Repeated reads collapse into one pending event", func(t *testing.T) {
		h := newHarness(t)
		user := h.user(t, "reader", "token", 10)
		series := h.addSeries(t, "Berserk", models.SeriesMetadata{AniListID: 30002})

		var first *models.ScrobbleEvent
		for chapter := 1.0; chapter <= 5; chapter++ {
			evt := h.read(t, user, series, chapter)
			if first == nil {
				first = evt
			}
			assert.Equal(t, first.ID(), evt.ID())
		}

		pending, err := h.events.FetchPending(ctx, models.ChapterRead)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		progress, ok := pending[0].Payload().(models.ReadProgress)
		require.True(t, ok)
		assert.Equal(t, 5.0, progress.Chapter)
		assert.Equal(t, int64(30002), pending[0].AniListID())
	})

	t.Run("Read without progress removes the pending event", func(t *testing.T) {
		h := newHarness(t)
		user := h.user(t, "reader", "token", 10)
		series := h.addSeries(t, "Berserk", models.SeriesMetadata{})
		h.read(t, user, series, 3)

		require.NoError(t, h.series.SetProgress(ctx, models.Progress{UserID: user.ID(), SeriesID: series.ID()}))

		evt, err := h.engine.Recorder().OnChapterRead(ctx, user.ID(), series.ID())
		require.NoError(t, err)
		assert.Nil(t, evt)

		_, err = h.events.GetPending(ctx, user.ID(), series.ID(), models.ChapterRead)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("External ids come from web links", func(t *testing.T) {
		h := newHarness(t)
		user := h.user(t, "reader", "token", 10)
		series := h.addSeries(t, "Vagabond", models.SeriesMetadata{
			WebLinks: "https://anilist.co/manga/656/Vagabond, https://myanimelist.net/manga/656",
		})

		evt, err := h.engine.Recorder().OnRatingChanged(ctx, user.ID(), series.ID(), 4.5)
		require.NoError(t, err)
		require.NotNil(t, evt)
		assert.Equal(t, int64(656), evt.AniListID())
		assert.Equal(t, int64(656), evt.MalID())
		assert.Equal(t, models.FormatManga, evt.Format())
	})

	t.Run("Invalid rating is rejected", func(t *testing.T) {
		h := newHarness(t)
		user := h.user(t, "reader", "token", 10)
		series := h.addSeries(t, "Berserk", models.SeriesMetadata{})

		_, err := h.engine.Recorder().OnRatingChanged(ctx, user.ID(), series.ID(), 7)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("Ineligible actions record nothing", func(t *testing.T) {
		h := newHarness(t)
		withCredential := h.user(t, "reader", "token", 10)
		withoutCredential := h.user(t, "lurker", "", 0)

		open := h.addSeries(t, "Berserk", models.SeriesMetadata{})

		closedLib := &models.Library{Name: "Private", AllowScrobbling: false}
		require.NoError(t, h.series.CreateLibrary(closedLib))
		closed := models.NewSeries(closedLib.ID, "Diary", models.FormatBook)
		require.NoError(t, h.series.Create(closed))

		unmatched := h.addSeries(t, "Doujin", models.SeriesMetadata{})
		unmatched.SetDontMatch(true)
		require.NoError(t, h.series.Update(unmatched))

		quarantined := h.addSeries(t, "Unknown", models.SeriesMetadata{})
		_, err := h.errors.Create(ctx, models.NewQuarantine(quarantined.ID(), h.library.ID, models.CommentUnknownSeries, ""))
		require.NoError(t, err)

		tc := []struct {
			name   string
			user   *models.User
			series *models.Series
		}{
			{name: "no credential", user: withoutCredential, series: open},
			{name: "library disallows scrobbling", user: withCredential, series: closed},
			{name: "do not match", user: withCredential, series: unmatched},
			{name: "quarantined", user: withCredential, series: quarantined},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				evt, err := h.engine.Recorder().OnWantToReadChanged(ctx, tt.user.ID(), tt.series.ID(), true)
				require.NoError(t, err)
				assert.Nil(t, evt)
			})
		}
	})

	t.Run("Unknown user is an error", func(t *testing.T) {
		h := newHarness(t)
		series := h.addSeries(t, "Berserk", models.SeriesMetadata{})

		_, err := h.engine.Recorder().OnReviewChanged(ctx, "missing", series.ID(), "t", "b")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
