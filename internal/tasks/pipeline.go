package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/scrobblex/internal/links"
	"github.com/desertthunder/scrobblex/internal/metrics"
	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/services"
)

// Delivery outcomes, used as metric labels.
const (
	outcomeProcessed   = "processed"
	outcomeErrored     = "errored"
	outcomeQuarantined = "quarantined"
	outcomeSkipped     = "skipped"
	outcomeRateLimited = "rate_limited"
)

// pipeline delivers the decisions of one run. It is run-local and not safe for concurrent use.
type pipeline struct {
	sc       *SyncContext
	tracker  services.Tracker
	governor *Governor
	resolver *links.Resolver
	batch    models.UnitOfWork
	alerter  Alerter
	opts     Options
	sleep    sleepFunc
	now      func() time.Time
	logger   *log.Logger
	report   *SyncReport

	quarantined map[string]bool
	work        map[string]int // Deliverable decisions left per user
	handled     int
}

// deliver runs one decision through the gates and the tracker.
//
// Event-level failures are recorded and absorbed. Only errAbortRun, fatal run errors, context errors and store
// failures are returned.
func (p *pipeline) deliver(ctx context.Context, d Decision) error {
	evt := d.Winner
	defer p.settle(evt.UserID())
	logger := p.logger.With("event_id", evt.ID(), "type", evt.Type(), "user_id", evt.UserID(), "series_id", evt.SeriesID())

	user := p.sc.Users[evt.UserID()]
	if user == nil || !user.HasCredential() {
		p.skip(evt)
		return nil
	}

	series := p.sc.Series[evt.SeriesID()]
	if series == nil {
		return p.fail(ctx, d, models.CommentUnknownSeries, outcomeErrored)
	}

	if user.CredentialExpired() {
		logger.Warn("credential expired, leaving event pending")
		p.batch.Quarantine(models.NewCredentialError(series.ID(), series.LibraryID(), user.ID(), models.CommentCredentialExpired, ""))
		p.skip(evt)
		return nil
	}

	if p.quarantined[series.ID()] {
		p.skip(evt)
		return nil
	}

	if series.Unmatchable() {
		logger.Info("series excluded from matching, quarantining")
		return p.quarantine(ctx, d, series, "series is marked as do not match")
	}

	remaining, err := p.governor.EnsureQuota(ctx, user)
	if err != nil {
		return p.fatal(err)
	}
	if remaining <= 0 {
		if !p.othersHaveWork(user.ID()) {
			logger.Warn("no other user with pending work has quota left, aborting run")
			return errAbortRun
		}
		p.skip(evt)
		return nil
	}

	payload := p.buildPayload(evt, user, series)

	for attempt := 0; ; attempt++ {
		resp, err := p.tracker.PostEvent(ctx, payload)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err == nil:
			remaining = resp.RateLeft
			p.governor.Update(user.ID(), remaining)
			if err := p.markProcessed(ctx, d); err != nil {
				return err
			}
			return p.governor.Pause(ctx, remaining)

		case errors.Is(err, services.ErrTooManyRequests):
			metrics.Deliveries.WithLabelValues(evt.Type().String(), outcomeRateLimited).Inc()
			if attempt >= p.opts.RateLimitRetries {
				logger.Warn("rate limited, retries exhausted; leaving event pending", "attempts", attempt+1)
				p.report.Skipped++
				return nil
			}
			logger.Warn("rate limited, cooling down before retry", "cooldown", p.opts.RateLimitCooldown)
			if err := p.sleep(ctx, p.opts.RateLimitCooldown); err != nil {
				return err
			}

		case services.IsFatal(err):
			return p.fatal(err)

		case errors.Is(err, services.ErrInvalidCredential):
			logger.Warn("tracker rejected credential", "error", err)
			return p.fail(ctx, d, models.CommentInvalidCredential, outcomeErrored)

		case errors.Is(err, services.ErrReviewRejected):
			logger.Warn("tracker rejected review", "error", err)
			return p.fail(ctx, d, models.CommentReviewRejected, outcomeErrored)

		default:
			logger.Warn("tracker could not process series, quarantining", "error", err)
			return p.quarantine(ctx, d, series, err.Error())
		}
	}
}

// buildPayload converts an event into the provider-agnostic delivery body.
func (p *pipeline) buildPayload(evt *models.ScrobbleEvent, user *models.User, series *models.Series) *services.ScrobblePayload {
	meta := series.Metadata()

	payload := &services.ScrobblePayload{
		Type:                evt.Type(),
		Credential:          user.Credential(),
		SeriesName:          series.Name(),
		LocalizedSeriesName: series.LocalizedName(),
		Format:              evt.Format().String(),
		AniListID:           evt.AniListID(),
		MalID:               evt.MalID(),
		ScrobbleDateUTC:     evt.UpdatedAt().UTC(),
	}

	if payload.AniListID == 0 {
		payload.AniListID = p.resolver.ResolveNumeric(links.AniList, meta)
	}
	if payload.MalID == 0 {
		payload.MalID = p.resolver.ResolveNumeric(links.MyAnimeList, meta)
	}
	if id, ok := p.resolver.ResolveID(links.MangaDex, meta); ok {
		payload.MangaDexID = id
	}

	switch body := evt.Payload().(type) {
	case models.ReadProgress:
		payload.VolumeNumber = models.NormalizeVolume(body.Volume)
		payload.ChapterNumber = models.NormalizeChapter(body.Chapter)
	case models.Rating:
		score := body.Score
		payload.Rating = &score
	case models.WantToRead:
		wanted := body.Wanted
		payload.WantToRead = &wanted
	case models.Review:
		payload.ReviewTitle = body.Title
		payload.ReviewBody = body.Body
	}

	return payload
}

// settle counts one of the user's decisions as handled, whatever its outcome.
func (p *pipeline) settle(userID string) {
	if p.work[userID] > 0 {
		p.work[userID]--
	}
}

// othersHaveWork reports whether a user other than userID still has decisions left and quota to send them.
func (p *pipeline) othersHaveWork(userID string) bool {
	for id, left := range p.work {
		if id == userID || left == 0 {
			continue
		}
		if !p.governor.Exhausted(id) {
			return true
		}
	}
	return false
}

func (p *pipeline) skip(evt *models.ScrobbleEvent) {
	p.report.Skipped++
	metrics.Deliveries.WithLabelValues(evt.Type().String(), outcomeSkipped).Inc()
}

func (p *pipeline) markProcessed(ctx context.Context, d Decision) error {
	at := p.now()
	for _, evt := range d.Contributors {
		if err := p.batch.MarkProcessed(evt, at); err != nil {
			return fmt.Errorf("failed to mark event %s processed: %w", evt.ID(), err)
		}
	}

	p.report.Processed++
	metrics.Deliveries.WithLabelValues(d.Winner.Type().String(), outcomeProcessed).Inc()
	return p.handledOne(ctx)
}

// fail marks every contributor errored with a classified comment.
func (p *pipeline) fail(ctx context.Context, d Decision, comment, outcome string) error {
	at := p.now()
	for _, evt := range d.Contributors {
		if err := p.batch.MarkErrored(evt, comment, at); err != nil {
			return fmt.Errorf("failed to mark event %s errored: %w", evt.ID(), err)
		}
	}

	p.report.Errored++
	metrics.Deliveries.WithLabelValues(d.Winner.Type().String(), outcome).Inc()
	return p.handledOne(ctx)
}

// quarantine records the series as unsendable for every user, once per run, and fails the decision.
func (p *pipeline) quarantine(ctx context.Context, d Decision, series *models.Series, details string) error {
	if !p.quarantined[series.ID()] {
		p.quarantined[series.ID()] = true
		p.batch.Quarantine(models.NewQuarantine(series.ID(), series.LibraryID(), models.CommentUnknownSeries, details))
		p.report.Quarantined++
		metrics.Quarantines.Inc()
	}
	return p.fail(ctx, d, models.CommentUnknownSeries, outcomeQuarantined)
}

// fatal alerts and converts a fatal tracker error into a run error.
func (p *pipeline) fatal(err error) error {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		p.alerter.Alert(AlertLicenseInvalid, err.Error())
	case errors.Is(err, services.ErrUnreachable):
		p.alerter.Alert(AlertServiceUnreachable, err.Error())
	}
	return fatalError(err)
}

// handledOne counts a delivered or failed decision and commits every CommitEvery decisions.
func (p *pipeline) handledOne(ctx context.Context) error {
	p.handled++
	if p.opts.CommitEvery > 0 && p.handled%p.opts.CommitEvery == 0 {
		return p.commit(ctx)
	}
	return nil
}

// commit applies staged writes. It ignores cancellation of ctx so progress made before a shutdown is kept.
func (p *pipeline) commit(ctx context.Context) error {
	staged := p.batch.Len()
	if staged == 0 {
		return nil
	}
	if err := p.batch.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to commit sync progress: %w", err)
	}
	p.logger.Debug("committed sync progress", "writes", staged)
	return nil
}
