package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// BackfillAll targets every user that has not completed backfill.
const BackfillAll = "all"

// BackfillReport summarizes one backfill invocation.
type BackfillReport struct {
	Users  int `json:"users"`  // Users backfilled
	Events int `json:"events"` // Events recorded
}

// Backfill seeds pending events from each targeted user's existing reading state.
//
// Targets are users with a credential whose backfill flag is unset; userID selects one of them, and "all" or
// empty selects every such user. Items go through the [Recorder] like live actions. The flag is set once a
// user's state has been enumerated, so repeated calls are no-ops.
func (e *Engine) Backfill(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*BackfillReport, error) {
	users, err := e.backfillTargets(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{}
	for i, user := range users {
		sendProgress(progress, backfillUpdate(i+1, len(users), user))

		n, err := e.backfillUser(ctx, user)
		if err != nil {
			return report, fmt.Errorf("backfill of user %s failed: %w", user.ID(), err)
		}

		if err := e.stores.Users.MarkBackfilled(ctx, user.ID(), e.now()); err != nil {
			return report, err
		}

		report.Users++
		report.Events += n
		e.logger.Info("backfill completed", "user_id", user.ID(), "events", n)
	}

	return report, nil
}

func (e *Engine) backfillTargets(ctx context.Context, userID string) ([]*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.EqualFold(userID, BackfillAll) {
		return e.stores.Users.ListNeedingBackfill(ctx)
	}

	user, err := e.stores.Users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasCredential() || user.BackfillCompleted() {
		return nil, nil
	}
	return []*models.User{user}, nil
}

// backfillUser records want-to-read, ratings, reviews and reading progress for one user.
func (e *Engine) backfillUser(ctx context.Context, user *models.User) (int, error) {
	logger := shared.WithLogger(e.logger, "user_id", user.ID())
	recorded := 0

	count := func(evt *models.ScrobbleEvent, err error) error {
		switch {
		case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrNotFound):
			logger.Warn("skipping backfill item", "error", err)
			return nil
		case err != nil:
			return err
		case evt != nil:
			recorded++
		}
		return nil
	}

	wanted, err := e.stores.Series.WantToRead(ctx, user.ID())
	if err != nil {
		return recorded, err
	}
	for _, seriesID := range wanted {
		if err := count(e.recorder.OnWantToReadChanged(ctx, user.ID(), seriesID, true)); err != nil {
			return recorded, err
		}
	}

	ratings, err := e.stores.Series.Ratings(ctx, user.ID())
	if err != nil {
		return recorded, err
	}
	for _, r := range ratings {
		if err := count(e.recorder.OnRatingChanged(ctx, user.ID(), r.SeriesID, r.Score)); err != nil {
			return recorded, err
		}
	}

	reviews, err := e.stores.Series.Reviews(ctx, user.ID())
	if err != nil {
		return recorded, err
	}
	for _, r := range reviews {
		if err := count(e.recorder.OnReviewChanged(ctx, user.ID(), r.SeriesID, r.Title, r.Body)); err != nil {
			return recorded, err
		}
	}

	started, err := e.stores.Series.ProgressSeries(ctx, user.ID())
	if err != nil {
		return recorded, err
	}
	for _, seriesID := range started {
		if err := count(e.recorder.OnChapterRead(ctx, user.ID(), seriesID)); err != nil {
			return recorded, err
		}
	}

	return recorded, nil
}
