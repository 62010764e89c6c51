package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/scrobblex/internal/formatter"
	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/repositories"
	"github.com/desertthunder/scrobblex/internal/shared"
	"github.com/desertthunder/scrobblex/internal/tasks"
)

type fakeEngine struct {
	cleared []string
	report  *tasks.SyncReport
	err     error
}

func (f *fakeEngine) RunSync(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncReport, error) {
	return f.report, f.err
}

func (f *fakeEngine) ClearQuarantine(ctx context.Context, seriesID string) (int64, error) {
	f.cleared = append(f.cleared, seriesID)
	return 2, nil
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("closed") }

type fixture struct {
	router *BasicRouter
	engine *fakeEngine
	events *repositories.EventRepository
	errors *repositories.ErrorRepository
	series *models.Series
	user   *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shared.RunMigrations(ctx, db, nil))

	users := repositories.NewUserRepository(db)
	seriesRepo := repositories.NewSeriesRepository(db)

	lib := &models.Library{Name: "Manga", AllowScrobbling: true}
	require.NoError(t, seriesRepo.CreateLibrary(lib))
	series := models.NewSeries(lib.ID, "Berserk", models.FormatManga)
	require.NoError(t, seriesRepo.Create(series))
	user := models.NewUser("reader", "token")
	require.NoError(t, users.Create(user))

	f := &fixture{
		engine: &fakeEngine{report: &tasks.SyncReport{Processed: 3}},
		events: repositories.NewEventRepository(db),
		errors: repositories.NewErrorRepository(db),
		series: series,
		user:   user,
	}
	f.router = NewRouter(Deps{
		Events: f.events,
		Errors: f.errors,
		Engine: f.engine,
		DB:     db,
		Logger: shared.NewLogger(io.Discard),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/healthz")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	h := &HealthHandler{db: failingPinger{}}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestEventsHandler(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	read := models.NewScrobbleEvent(f.user.ID(), f.series.ID(), f.series.LibraryID(), models.ReadProgress{Volume: 1, Chapter: 3})
	require.NoError(t, f.events.UpsertPending(ctx, read))
	rating := models.NewScrobbleEvent(f.user.ID(), f.series.ID(), f.series.LibraryID(), models.Rating{Score: 4})
	require.NoError(t, f.events.UpsertPending(ctx, rating))

	batch := f.events.NewBatch()
	require.NoError(t, batch.MarkProcessed(rating, time.Now()))
	require.NoError(t, batch.Commit(ctx))

	tc := []struct {
		name   string
		target string
		status int
		ids    []string
	}{
		{name: "all", target: "/api/scrobble/events", status: http.StatusOK, ids: []string{rating.ID(), read.ID()}},
		{name: "pending", target: "/api/scrobble/events?status=pending", status: http.StatusOK, ids: []string{read.ID()}},
		{name: "processed", target: "/api/scrobble/events?status=processed", status: http.StatusOK, ids: []string{rating.ID()}},
		{name: "by type", target: "/api/scrobble/events?type=rating", status: http.StatusOK, ids: []string{rating.ID()}},
		{name: "limit", target: "/api/scrobble/events?limit=1", status: http.StatusOK, ids: []string{rating.ID()}},
		{name: "other user", target: "/api/scrobble/events?user_id=nobody", status: http.StatusOK, ids: []string{}},
		{name: "bad type", target: "/api/scrobble/events?type=bogus", status: http.StatusBadRequest},
		{name: "bad status", target: "/api/scrobble/events?status=done", status: http.StatusBadRequest},
		{name: "bad limit", target: "/api/scrobble/events?limit=-1", status: http.StatusBadRequest},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}

			var views []formatter.EventView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
			ids := make([]string, 0, len(views))
			for _, v := range views {
				ids = append(ids, v.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestErrorsHandler(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.errors.Create(ctx, models.NewQuarantine(f.series.ID(), f.series.LibraryID(), models.CommentUnknownSeries, "status 400"))
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/scrobble/errors?series_id="+f.series.ID())
		require.Equal(t, http.StatusOK, rec.Code)

		var views []formatter.ErrorView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, models.CommentUnknownSeries, views[0].Comment)
		assert.Equal(t, "series", views[0].Kind)
	})

	t.Run("clear requires series", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/scrobble/errors")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.engine.cleared)
	})

	t.Run("clear", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/scrobble/errors?series_id="+f.series.ID())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{f.series.ID()}, f.engine.cleared)
		assert.Contains(t, rec.Body.String(), `"removed":2`)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/scrobble/errors")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestSyncHandler(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/scrobble/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processed":3`)

	f.engine.err = shared.ErrSyncInProgress
	rec = f.do(t, http.MethodPost, "/api/scrobble/sync")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.engine.err = tasks.ErrLicenseInvalid
	f.engine.report = &tasks.SyncReport{Aborted: true}
	rec = f.do(t, http.MethodPost, "/api/scrobble/sync")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"aborted":true`))
}

func TestRecoverer(t *testing.T) {
	r := NewBasicRouter()
	r.Use(Recoverer(shared.NewLogger(io.Discard)))
	r.Handle(http.MethodGet, "/panic", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBasicRouter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Method))
	})

	r := NewBasicRouter()
	var _ Router = r
	r.Handle(http.MethodGet, "/items", ok)
	r.Handle("post", "/items", ok)

	tests := []struct {
		name   string
		method string
		code   int
		allow  string
	}{
		{"get", http.MethodGet, http.StatusOK, ""},
		{"lowercase registration", http.MethodPost, http.StatusOK, ""},
		{"head falls back to get", http.MethodHead, http.StatusOK, ""},
		{"unregistered method", http.MethodDelete, http.StatusMethodNotAllowed, "GET, HEAD, POST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, "/items", nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.allow, rec.Header().Get("Allow"))
		})
	}

	t.Run("unknown path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("routes", func(t *testing.T) {
		assert.Equal(t, []string{"GET /items", "POST /items"}, r.Routes())
	})
}

func TestNewRouterRoutes(t *testing.T) {
	f := setup(t)
	assert.Equal(t, []string{
		"* /api/scrobble/errors",
		"GET /api/scrobble/events",
		"POST /api/scrobble/sync",
		"GET /healthz",
		"GET /metrics",
	}, f.router.Routes())
}

func TestService(t *testing.T) {
	svc := NewService("127.0.0.1:0", http.NotFoundHandler(), shared.NewLogger(io.Discard))
	assert.Equal(t, "http-server", svc.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}
