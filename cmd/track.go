package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// recorded reports the outcome of a recorder call.
func (r *Runner) recorded(evt *models.ScrobbleEvent, series *models.Series) error {
	if evt == nil {
		return r.writePlain("ℹ️  No event queued for %s (scrobbling disabled, user without credential or nothing to send)\n", series.Name())
	}
	return r.writePlain("✓ Queued %s event %s for %s\n", evt.Type(), evt.ID(), series.Name())
}

// target resolves the --user and --series flags shared by every track subcommand.
func (r *Runner) target(ctx context.Context, cmd *cli.Command) (*models.User, *models.Series, error) {
	if err := r.open(ctx); err != nil {
		return nil, nil, err
	}

	user, err := r.resolveUser(ctx, cmd.String("user"))
	if err != nil {
		return nil, nil, err
	}
	series, err := r.resolveSeries(ctx, cmd.String("series"))
	if err != nil {
		return nil, nil, err
	}
	return user, series, nil
}

// TrackRead stores the reader's position, then records a chapter-read event from it.
func (r *Runner) TrackRead(ctx context.Context, cmd *cli.Command) error {
	user, series, err := r.target(ctx, cmd)
	if err != nil {
		return err
	}

	pages := int(cmd.Int("pages"))
	if pages < 0 {
		return fmt.Errorf("%w: --pages cannot be negative", shared.ErrInvalidArgument)
	}

	volume := models.LooseLeafVolume
	if cmd.IsSet("volume") {
		volume = cmd.Float("volume")
	}
	chapter := models.DefaultChapter
	if cmd.IsSet("chapter") {
		chapter = cmd.Float("chapter")
	}

	err = r.series.SetProgress(ctx, models.Progress{
		UserID:    user.ID(),
		SeriesID:  series.ID(),
		Volume:    volume,
		Chapter:   chapter,
		PagesRead: pages,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	evt, err := r.engine.Recorder().OnChapterRead(ctx, user.ID(), series.ID())
	if err != nil {
		return err
	}
	return r.recorded(evt, series)
}

// TrackRating stores a rating and records a score event.
func (r *Runner) TrackRating(ctx context.Context, cmd *cli.Command) error {
	user, series, err := r.target(ctx, cmd)
	if err != nil {
		return err
	}

	score := cmd.Float("score")
	if score < 0 || score > 5 {
		return fmt.Errorf("%w: --score must be between 0 and 5", shared.ErrInvalidArgument)
	}

	if err := r.series.SetRating(ctx, user.ID(), series.ID(), score); err != nil {
		return err
	}

	evt, err := r.engine.Recorder().OnRatingChanged(ctx, user.ID(), series.ID(), score)
	if err != nil {
		return err
	}
	return r.recorded(evt, series)
}

// TrackReview stores a review and records a review event.
func (r *Runner) TrackReview(ctx context.Context, cmd *cli.Command) error {
	user, series, err := r.target(ctx, cmd)
	if err != nil {
		return err
	}

	title, body := cmd.String("title"), cmd.String("body")
	if err := r.series.SetReview(ctx, user.ID(), series.ID(), title, body); err != nil {
		return err
	}

	evt, err := r.engine.Recorder().OnReviewChanged(ctx, user.ID(), series.ID(), title, body)
	if err != nil {
		return err
	}
	return r.recorded(evt, series)
}

// TrackWantToRead adds or removes a series from the want-to-read list and records the change.
func (r *Runner) TrackWantToRead(ctx context.Context, cmd *cli.Command) error {
	user, series, err := r.target(ctx, cmd)
	if err != nil {
		return err
	}

	wanted := !cmd.Bool("remove")
	if err := r.series.SetWantToRead(ctx, user.ID(), series.ID(), wanted); err != nil {
		return err
	}

	evt, err := r.engine.Recorder().OnWantToReadChanged(ctx, user.ID(), series.ID(), wanted)
	if err != nil {
		return err
	}
	return r.recorded(evt, series)
}
