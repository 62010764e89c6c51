package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/scrobblex/internal/links"
	"github.com/desertthunder/scrobblex/internal/metrics"
	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/services"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// SyncContext is the working set of one run. It is run-local and never shared.
type SyncContext struct {
	Reads      []*models.ScrobbleEvent
	Ratings    []*models.ScrobbleEvent
	Reviews    []*models.ScrobbleEvent
	WantToRead []Decision

	Users    map[string]*models.User
	Series   map[string]*models.Series
	Filtered int // Pending events dropped for a quarantined series or a disabled library
}

// Total returns the number of decisions to deliver.
func (sc *SyncContext) Total() int {
	return len(sc.Reads) + len(sc.Ratings) + len(sc.Reviews) + len(sc.WantToRead)
}

// workByUser counts the decisions of each user that can still be delivered this run.
// Users without a credential or with an expired one are left out.
func (sc *SyncContext) workByUser() map[string]int {
	work := make(map[string]int, len(sc.Users))
	for _, g := range sc.groups() {
		for _, d := range g.decisions {
			u := sc.Users[d.Winner.UserID()]
			if u == nil || !u.HasCredential() || u.CredentialExpired() {
				continue
			}
			work[u.ID()]++
		}
	}
	return work
}

type group struct {
	kind      models.EventType
	decisions []Decision
}

// groups returns the delivery groups in their fixed order: reads, ratings, reviews, want-to-read.
func (sc *SyncContext) groups() []group {
	single := func(events []*models.ScrobbleEvent) []Decision {
		decisions := make([]Decision, 0, len(events))
		for _, evt := range events {
			decisions = append(decisions, Decision{Winner: evt, Contributors: []*models.ScrobbleEvent{evt}})
		}
		return decisions
	}

	return []group{
		{kind: models.ChapterRead, decisions: single(sc.Reads)},
		{kind: models.ScoreUpdated, decisions: single(sc.Ratings)},
		{kind: models.ReviewUpdated, decisions: single(sc.Reviews)},
		{kind: models.AddWantToRead, decisions: sc.WantToRead},
	}
}

// SyncReport summarizes one run.
type SyncReport struct {
	Pending     int           `json:"pending"`     // Decisions in the working set
	Filtered    int           `json:"filtered"`    // Pending events excluded before delivery
	Processed   int           `json:"processed"`   // Decisions delivered
	Errored     int           `json:"errored"`     // Decisions permanently failed
	Skipped     int           `json:"skipped"`     // Decisions left pending
	Quarantined int           `json:"quarantined"` // Series quarantined during the run
	Superseded  int           `json:"superseded"`  // Delivered events edited during the run, left pending with their new values
	Aborted     bool          `json:"aborted"`     // The run stopped before the working set was exhausted
	Reason      string        `json:"reason,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// CleanupReport summarizes one retention cleanup.
type CleanupReport struct {
	Processed int64 `json:"processed"` // Processed events past retention
	Stale     int64 `json:"stale"`     // Pending events of users without a credential
	Orphaned  int64 `json:"orphaned"`  // Error records whose series no longer exists
}

// Engine runs scrobble synchronization and retention cleanup.
//
// RunSync and Cleanup are each mutually exclusive with themselves: a concurrent call is dropped with
// [shared.ErrSyncInProgress] or [shared.ErrCleanupInProgress]. Both also hold a store lock so they never
// interleave writes. Operator actions such as [Engine.ClearQuarantine] are single statements and do not wait
// for a running sync.
type Engine struct {
	stores   Stores
	tracker  services.Tracker
	resolver *links.Resolver
	recorder *Recorder
	alerter  Alerter
	opts     Options
	logger   *log.Logger
	sleep    sleepFunc
	now      func() time.Time

	syncMu    sync.Mutex
	cleanupMu sync.Mutex
	storeMu   sync.Mutex
}

// NewEngine creates an [Engine]. A nil logger defaults to one writing to stderr.
func NewEngine(stores Stores, tracker services.Tracker, opts Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = shared.WithLogger(logger, "component", "sync")
	resolver := links.NewResolver()

	return &Engine{
		stores:   stores,
		tracker:  tracker,
		resolver: resolver,
		recorder: NewRecorder(stores, resolver, logger),
		alerter:  NewLogAlerter(logger),
		opts:     opts,
		logger:   logger,
		sleep:    timeSleep,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Recorder returns the recorder sharing this engine's stores and resolver.
func (e *Engine) Recorder() *Recorder { return e.recorder }

// Resolver returns the id resolver used for payloads.
func (e *Engine) Resolver() *links.Resolver { return e.resolver }

// SetAlerter replaces the default [LogAlerter].
func (e *Engine) SetAlerter(a Alerter) { e.alerter = a }

// SetSleepFunc replaces the cancellable sleep used for pauses and cooldowns.
func (e *Engine) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) { e.sleep = fn }

// SetClock replaces the clock used for processed timestamps and retention.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// RunSync delivers every pending event once.
//
// Event-level failures are recorded and do not stop the run. A run whose only active user has no quota left
// stops cleanly with Aborted set and a nil error. [ErrLicenseInvalid] and [ErrServiceUnreachable] abort the run
// after committing the progress made so far; remaining events stay pending for the next run.
func (e *Engine) RunSync(ctx context.Context, progress chan<- ProgressUpdate) (*SyncReport, error) {
	if !e.syncMu.TryLock() {
		metrics.SyncRuns.WithLabelValues("skipped").Inc()
		return nil, shared.ErrSyncInProgress
	}
	defer e.syncMu.Unlock()

	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	start := time.Now()
	report := &SyncReport{}
	defer func() {
		report.Duration = time.Since(start)
		metrics.SyncDuration.Observe(report.Duration.Seconds())
	}()

	sc, err := e.assemble(ctx)
	if err != nil {
		metrics.SyncRuns.WithLabelValues("failed").Inc()
		return report, err
	}

	report.Pending = sc.Total()
	report.Filtered = sc.Filtered
	sendProgress(progress, assembleUpdate(report.Pending, report.Filtered))

	if report.Pending == 0 {
		e.logger.Info("no pending events")
		metrics.SyncRuns.WithLabelValues("completed").Inc()
		return report, nil
	}

	governor := NewGovernor(e.tracker, e.opts, e.sleep, e.logger)

	p := &pipeline{
		sc:          sc,
		tracker:     e.tracker,
		governor:    governor,
		resolver:    e.resolver,
		batch:       e.stores.Events.NewBatch(),
		alerter:     e.alerter,
		opts:        e.opts,
		sleep:       e.sleep,
		now:         e.now,
		logger:      e.logger,
		report:      report,
		quarantined: make(map[string]bool),
		work:        sc.workByUser(),
	}

	users := make([]*models.User, 0, len(sc.Users))
	for _, u := range sc.Users {
		users = append(users, u)
	}

	sendProgress(progress, prefetchUpdate(len(users)))
	if err := governor.Prefetch(ctx, users); err != nil {
		return e.finish(ctx, p, p.fatal(err))
	}

	for _, g := range sc.groups() {
		phase := phaseFor(g.kind)
		total := len(g.decisions)
		sendProgress(progress, deliverUpdate(phase, 0, total, nil))

		for i, d := range g.decisions {
			sendProgress(progress, deliverUpdate(phase, i+1, total, d.Winner))

			if err := p.deliver(ctx, d); err != nil {
				return e.finish(ctx, p, err)
			}
		}

		sendProgress(progress, commitUpdate(p.batch.Len()))
		if err := p.commit(ctx); err != nil {
			return e.finish(ctx, p, err)
		}
	}

	report, err = e.finish(ctx, p, nil)
	if err != nil {
		return report, err
	}

	if cleanup, err := e.cleanup(ctx); err != nil {
		e.logger.Warn("post-sync cleanup failed", "error", err)
	} else {
		sendProgress(progress, cleanupUpdate(cleanup))
	}

	return report, nil
}

// finish commits staged writes and settles the report for a run ending with cause.
func (e *Engine) finish(ctx context.Context, p *pipeline, cause error) (*SyncReport, error) {
	report := p.report

	if err := p.commit(ctx); err != nil {
		e.logger.Error("failed to commit sync progress", "error", err)
		if cause == nil {
			cause = err
		}
	}

	if c, ok := p.batch.(supersededCounter); ok && c.Superseded() > 0 {
		report.Superseded = c.Superseded()
		e.logger.Info("events edited during the run stay pending", "count", report.Superseded)
	}

	switch {
	case cause == nil:
		e.alerter.Resolve(AlertLicenseInvalid)
		e.alerter.Resolve(AlertServiceUnreachable)
		metrics.SyncRuns.WithLabelValues("completed").Inc()
		e.logger.Info("sync completed",
			"processed", report.Processed, "errored", report.Errored,
			"skipped", report.Skipped, "quarantined", report.Quarantined)
		return report, nil

	case errors.Is(cause, errAbortRun):
		report.Aborted = true
		report.Reason = "quota exhausted"
		metrics.SyncRuns.WithLabelValues("aborted").Inc()
		e.logger.Warn("sync aborted", "reason", report.Reason, "processed", report.Processed)
		return report, nil

	default:
		report.Aborted = true
		report.Reason = cause.Error()
		metrics.SyncRuns.WithLabelValues("failed").Inc()
		e.logger.Error("sync aborted", "error", cause, "processed", report.Processed)
		return report, cause
	}
}

// assemble loads the run's working set.
//
// Events for quarantined series or for series in libraries that disallow scrobbling are left pending and
// excluded. Events of series that no longer exist are kept so the pipeline can fail them.
func (e *Engine) assemble(ctx context.Context) (*SyncContext, error) {
	quarantined, err := e.stores.Errors.FetchQuarantined(ctx)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]bool, len(quarantined))
	for _, id := range quarantined {
		excluded[id] = true
	}

	sc := &SyncContext{
		Users:  make(map[string]*models.User),
		Series: make(map[string]*models.Series),
	}

	pending := make(map[models.EventType][]*models.ScrobbleEvent, len(models.EventTypes))
	for _, t := range models.EventTypes {
		events, err := e.stores.Events.FetchPending(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch pending %s events: %w", t, err)
		}

		kept := events[:0]
		for _, evt := range events {
			ok, err := e.eligible(ctx, sc, excluded, evt)
			if err != nil {
				return nil, err
			}
			if !ok {
				sc.Filtered++
				continue
			}
			kept = append(kept, evt)
		}

		pending[t] = kept
		metrics.PendingEvents.WithLabelValues(t.String()).Set(float64(len(kept)))
	}

	sc.Reads = pending[models.ChapterRead]
	sc.Ratings = pending[models.ScoreUpdated]
	sc.Reviews = pending[models.ReviewUpdated]
	sc.WantToRead = Compact(pending[models.AddWantToRead], pending[models.RemoveWantToRead])

	return sc, nil
}

// eligible loads the event's series and user into sc and reports whether the event belongs in the run.
func (e *Engine) eligible(ctx context.Context, sc *SyncContext, excluded map[string]bool, evt *models.ScrobbleEvent) (bool, error) {
	if excluded[evt.SeriesID()] {
		return false, nil
	}

	series, seen := sc.Series[evt.SeriesID()]
	if !seen {
		var err error
		series, err = e.stores.Series.GetSeries(ctx, evt.SeriesID())
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return false, err
		}
		sc.Series[evt.SeriesID()] = series
	}
	if series != nil && !series.AllowsScrobbling() {
		return false, nil
	}

	if _, seen := sc.Users[evt.UserID()]; !seen {
		user, err := e.stores.Users.GetUser(ctx, evt.UserID())
		switch {
		case errors.Is(err, shared.ErrNotFound):
			// Left for cleanup.
			return false, nil
		case err != nil:
			return false, err
		}
		sc.Users[evt.UserID()] = user
	}

	return true, nil
}

// Cleanup applies the retention policy.
func (e *Engine) Cleanup(ctx context.Context) (*CleanupReport, error) {
	if !e.cleanupMu.TryLock() {
		return nil, shared.ErrCleanupInProgress
	}
	defer e.cleanupMu.Unlock()

	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	return e.cleanup(ctx)
}

// cleanup deletes processed events past retention, pending events of users without a credential and error
// records of deleted series. Callers hold storeMu.
func (e *Engine) cleanup(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{}
	cutoff := e.now().Add(-e.opts.Retention)

	var err error
	if report.Processed, err = e.stores.Events.DeleteProcessedOlderThan(ctx, cutoff); err != nil {
		return report, err
	}
	metrics.CleanupDeleted.WithLabelValues("processed").Add(float64(report.Processed))

	if report.Stale, err = e.stores.Events.DeletePendingForUsersWithoutCredential(ctx); err != nil {
		return report, err
	}
	metrics.CleanupDeleted.WithLabelValues("stale").Add(float64(report.Stale))

	if report.Orphaned, err = e.stores.Errors.DeleteOrphaned(ctx); err != nil {
		return report, err
	}
	metrics.CleanupDeleted.WithLabelValues("orphaned").Add(float64(report.Orphaned))

	e.logger.Info("cleanup completed", "processed", report.Processed, "stale", report.Stale, "orphaned", report.Orphaned)
	return report, nil
}

// ClearQuarantine removes every error record for a series so its pending events are delivered again.
func (e *Engine) ClearQuarantine(ctx context.Context, seriesID string) (int64, error) {
	n, err := e.stores.Errors.DeleteForSeries(ctx, seriesID)
	if err != nil {
		return 0, err
	}
	e.logger.Info("cleared series errors", "series_id", seriesID, "records", n)
	return n, nil
}

// Rematch replaces a series' external ids and clears its errors.
func (e *Engine) Rematch(ctx context.Context, seriesID string, meta models.SeriesMetadata) error {
	if err := e.stores.Series.UpdateMetadata(ctx, seriesID, meta); err != nil {
		return err
	}
	if _, err := e.stores.Errors.DeleteForSeries(ctx, seriesID); err != nil {
		return err
	}
	e.logger.Info("series rematched", "series_id", seriesID, "anilist_id", meta.AniListID, "mal_id", meta.MalID)
	return nil
}
