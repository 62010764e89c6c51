package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/scrobblex/internal/metrics"
	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/services"
)

const prefetchConcurrency = 4

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Governor mirrors each user's remote quota for the duration of one run.
//
// The first reference to a user queries the tracker; afterwards the rate left reported by each response
// replaces the cached value.
type Governor struct {
	tracker  services.Tracker
	logger   *log.Logger
	limiter  *rate.Limiter
	lowWater int
	lowPause time.Duration
	sleep    sleepFunc

	mu     sync.Mutex
	quotas map[string]int
}

// NewGovernor creates a run-local governor. A zero throttle disables sub-second pacing.
func NewGovernor(tracker services.Tracker, opts Options, sleep sleepFunc, logger *log.Logger) *Governor {
	limit := rate.Inf
	if opts.Throttle > 0 {
		limit = rate.Every(opts.Throttle)
	}
	if sleep == nil {
		sleep = timeSleep
	}

	return &Governor{
		tracker:  tracker,
		logger:   logger,
		limiter:  rate.NewLimiter(limit, 1),
		lowWater: opts.LowWater,
		lowPause: opts.LowQuotaPause,
		sleep:    sleep,
		quotas:   make(map[string]int),
	}
}

// Prefetch resolves quota for every user concurrently. Only fatal tracker errors are returned.
func (g *Governor) Prefetch(ctx context.Context, users []*models.User) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(prefetchConcurrency)

	for _, user := range users {
		eg.Go(func() error {
			_, err := g.EnsureQuota(egCtx, user)
			return err
		})
	}

	return eg.Wait()
}

// EnsureQuota returns the cached quota for user, querying the tracker on first reference.
//
// A user without a credential has zero quota and causes no call. Non-fatal lookup failures are logged and
// cached as zero so the user's events are skipped for this run.
func (g *Governor) EnsureQuota(ctx context.Context, user *models.User) (int, error) {
	g.mu.Lock()
	remaining, ok := g.quotas[user.ID()]
	g.mu.Unlock()
	if ok {
		return remaining, nil
	}

	if user.HasCredential() {
		var err error
		remaining, err = g.tracker.RemainingQuota(ctx, user.Credential())
		if err != nil {
			if services.IsFatal(err) || ctx.Err() != nil {
				return 0, err
			}
			g.logger.Warn("quota lookup failed, skipping user for this run", "user_id", user.ID(), "error", err)
			remaining = 0
		}
	}

	g.Update(user.ID(), remaining)
	return remaining, nil
}

// Update replaces the cached quota for a user.
func (g *Governor) Update(userID string, remaining int) {
	g.mu.Lock()
	g.quotas[userID] = remaining
	g.mu.Unlock()

	metrics.QuotaRemaining.WithLabelValues(userID).Set(float64(remaining))
}

// Remaining returns the cached quota and whether the user has been resolved.
func (g *Governor) Remaining(userID string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining, ok := g.quotas[userID]
	return remaining, ok
}

// Exhausted reports whether a resolved user has no quota left.
func (g *Governor) Exhausted(userID string) bool {
	remaining, ok := g.Remaining(userID)
	return ok && remaining <= 0
}

// Pause throttles after a delivery: a short paced wait while remaining is above the low-water mark,
// a full pause otherwise.
func (g *Governor) Pause(ctx context.Context, remaining int) error {
	if remaining > g.lowWater {
		return g.limiter.Wait(ctx)
	}
	return g.sleep(ctx, g.lowPause)
}
