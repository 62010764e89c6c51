package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/scrobblex/internal/links"
	"github.com/desertthunder/scrobblex/internal/models"
)

// Recorder turns user actions into pending events.
//
// Every action is an upsert keyed by (user, series, type), so repeated calls before a sync collapse into one
// pending event carrying the latest values. Actions on ineligible users or series record nothing and return
// a nil event.
type Recorder struct {
	events   EventStore
	errors   ErrorStore
	users    UserStore
	series   SeriesStore
	resolver *links.Resolver
	logger   *log.Logger
}

// NewRecorder creates a [Recorder] over the given stores.
func NewRecorder(stores Stores, resolver *links.Resolver, logger *log.Logger) *Recorder {
	return &Recorder{
		events:   stores.Events,
		errors:   stores.Errors,
		users:    stores.Users,
		series:   stores.Series,
		resolver: resolver,
		logger:   logger,
	}
}

// canScrobble loads the series when the user has a credential, the library allows scrobbling and the series
// is neither excluded from matching nor quarantined.
func (r *Recorder) canScrobble(ctx context.Context, userID, seriesID string) (*models.Series, bool, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if !user.HasCredential() {
		return nil, false, nil
	}

	series, err := r.series.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, false, err
	}
	if !series.AllowsScrobbling() || series.DontMatch() {
		return series, false, nil
	}

	quarantined, err := r.errors.HasQuarantine(ctx, seriesID)
	if err != nil {
		return nil, false, err
	}

	return series, !quarantined, nil
}

func (r *Recorder) record(ctx context.Context, userID, seriesID string, payload models.Payload) (*models.ScrobbleEvent, error) {
	series, ok, err := r.canScrobble(ctx, userID, seriesID)
	if err != nil || !ok {
		return nil, err
	}
	return r.store(ctx, userID, series, payload)
}

func (r *Recorder) store(ctx context.Context, userID string, series *models.Series, payload models.Payload) (*models.ScrobbleEvent, error) {
	evt, err := r.newEvent(userID, series, payload)
	if err != nil {
		return nil, err
	}

	if err := r.events.UpsertPending(ctx, evt); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", payload.EventType(), err)
	}

	r.logger.Debug("recorded event", "type", evt.Type(), "user_id", userID, "series_id", series.ID(), "event_id", evt.ID())
	return evt, nil
}

func (r *Recorder) newEvent(userID string, series *models.Series, payload models.Payload) (*models.ScrobbleEvent, error) {
	evt := models.NewScrobbleEvent(userID, series.ID(), series.LibraryID(), payload)
	evt.SetFormat(series.Format())

	meta := series.Metadata()
	evt.SetExternalIDs(r.resolver.ResolveNumeric(links.AniList, meta), r.resolver.ResolveNumeric(links.MyAnimeList, meta))

	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

// OnChapterRead records the user's current position in a series. A series without progress removes any
// pending read event instead.
func (r *Recorder) OnChapterRead(ctx context.Context, userID, seriesID string) (*models.ScrobbleEvent, error) {
	series, ok, err := r.canScrobble(ctx, userID, seriesID)
	if err != nil || !ok {
		return nil, err
	}

	progress, err := r.series.Progress(ctx, userID, seriesID)
	if err != nil {
		return nil, err
	}

	if !progress.Started() {
		if _, err := r.events.RemovePending(ctx, userID, seriesID, models.ChapterRead); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return r.store(ctx, userID, series, models.ReadProgress{Volume: progress.Volume, Chapter: progress.Chapter})
}

// OnRatingChanged records a new score (0-5) for a series.
func (r *Recorder) OnRatingChanged(ctx context.Context, userID, seriesID string, score float64) (*models.ScrobbleEvent, error) {
	return r.record(ctx, userID, seriesID, models.Rating{Score: score})
}

// OnReviewChanged records a new or edited review.
func (r *Recorder) OnReviewChanged(ctx context.Context, userID, seriesID, title, body string) (*models.ScrobbleEvent, error) {
	return r.record(ctx, userID, seriesID, models.Review{Title: title, Body: body})
}

// OnWantToReadChanged records an add to or removal from the want-to-read list.
func (r *Recorder) OnWantToReadChanged(ctx context.Context, userID, seriesID string, wanted bool) (*models.ScrobbleEvent, error) {
	return r.record(ctx, userID, seriesID, models.WantToRead{Wanted: wanted})
}
