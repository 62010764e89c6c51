package tasks

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/repositories"
	"github.com/desertthunder/scrobblex/internal/shared"
	tu "github.com/desertthunder/scrobblex/internal/testing"
)

type recordingAlerter struct {
	mu       sync.Mutex
	alerts   []string
	resolved []string
}

func (a *recordingAlerter) Alert(reason, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, reason)
}

func (a *recordingAlerter) Resolve(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolved = append(a.resolved, reason)
}

type harness struct {
	db      *sql.DB
	users   *repositories.UserRepository
	series  *repositories.SeriesRepository
	events  *repositories.EventRepository
	errors  *repositories.ErrorRepository
	library *models.Library

	tracker *tu.FakeTracker
	sleeper *tu.RecordingSleeper
	alerter *recordingAlerter
	engine  *Engine
}

func testOptions() Options {
	return Options{
		CommitEvery:       5,
		LowWater:          10,
		LowQuotaPause:     time.Minute,
		RateLimitCooldown: 10 * time.Minute,
		RateLimitRetries:  1,
		Retention:         7 * 24 * time.Hour,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shared.RunMigrations(context.Background(), db, nil))

	h := &harness{
		db:      db,
		users:   repositories.NewUserRepository(db),
		series:  repositories.NewSeriesRepository(db),
		events:  repositories.NewEventRepository(db),
		errors:  repositories.NewErrorRepository(db),
		tracker: tu.NewFakeTracker(),
		sleeper: &tu.RecordingSleeper{},
		alerter: &recordingAlerter{},
	}

	h.library = &models.Library{Name: "Manga", AllowScrobbling: true}
	require.NoError(t, h.series.CreateLibrary(h.library))

	stores := Stores{Events: h.events, Errors: h.errors, Users: h.users, Series: h.series}
	h.engine = NewEngine(stores, h.tracker, testOptions(), shared.NewLogger(io.Discard))
	h.engine.SetAlerter(h.alerter)
	h.engine.SetSleepFunc(h.sleeper.Sleep)

	return h
}

func (h *harness) user(t *testing.T, name, credential string, quota int) *models.User {
	t.Helper()
	user := models.NewUser(name, credential)
	require.NoError(t, h.users.Create(user))
	if credential != "" {
		h.tracker.SetQuota(credential, quota)
	}
	return user
}

func (h *harness) addSeries(t *testing.T, name string, meta models.SeriesMetadata) *models.Series {
	t.Helper()
	series := models.NewSeries(h.library.ID, name, models.FormatManga)
	series.SetMetadata(meta)
	require.NoError(t, h.series.Create(series))
	return series
}

func (h *harness) read(t *testing.T, user *models.User, series *models.Series, chapter float64) *models.ScrobbleEvent {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.series.SetProgress(ctx, models.Progress{
		UserID:    user.ID(),
		SeriesID:  series.ID(),
		Volume:    1,
		Chapter:   chapter,
		PagesRead: int(chapter) * 20,
	}))

	evt, err := h.engine.Recorder().OnChapterRead(ctx, user.ID(), series.ID())
	require.NoError(t, err)
	require.NotNil(t, evt)
	return evt
}

func (h *harness) reload(t *testing.T, evt *models.ScrobbleEvent) *models.ScrobbleEvent {
	t.Helper()
	stored, err := h.events.Get(context.Background(), evt.ID())
	require.NoError(t, err)
	return stored
}

func expiredToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}
