// package scheduler runs the engine's periodic jobs under a suture supervisor
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/desertthunder/scrobblex/internal/metrics"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// RunFunc is one execution of a scheduled job.
type RunFunc func(ctx context.Context) error

// JobConfig describes when and how persistently a job runs.
type JobConfig struct {
	Name       string
	Interval   time.Duration
	Retries    int           // Whole-run retries after a failed execution
	Backoff    time.Duration // Wait between retries
	RunOnStart bool          // Execute once immediately instead of waiting a full interval
}

// Job executes a [RunFunc] on a fixed interval. It implements [suture.Service].
//
// A failed execution is retried up to Retries times. Runs dropped because another run of the same kind holds the
// lock are not retried.
type Job struct {
	cfg    JobConfig
	run    RunFunc
	logger *log.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewJob creates a [Job]. A nil logger falls back to [shared.NewLogger].
func NewJob(cfg JobConfig, run RunFunc, logger *log.Logger) *Job {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Job{
		cfg:    cfg,
		run:    run,
		logger: shared.WithLogger(logger, "job", cfg.Name),
		sleep:  sleepCtx,
	}
}

// String identifies the job in supervisor events.
func (j *Job) String() string {
	return j.cfg.Name
}

// Serve implements [suture.Service]. It returns when ctx is cancelled.
func (j *Job) Serve(ctx context.Context) error {
	if j.cfg.Interval <= 0 {
		return fmt.Errorf("%w: job %s has no interval", shared.ErrInvalidConfig, j.cfg.Name)
	}

	if j.cfg.RunOnStart {
		j.Execute(ctx)
	}

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.Execute(ctx)
		}
	}
}

// Execute runs the job once with its retry budget and reports whether it eventually succeeded.
func (j *Job) Execute(ctx context.Context) bool {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := j.run(ctx)

		switch {
		case err == nil:
			j.logger.Debug("job finished", "attempt", attempt+1, "duration", time.Since(start))
			return true
		case errors.Is(err, shared.ErrSyncInProgress), errors.Is(err, shared.ErrCleanupInProgress):
			j.logger.Info("previous run still in progress, skipping")
			return false
		case ctx.Err() != nil:
			return false
		case attempt >= j.cfg.Retries:
			j.logger.Error("job failed, retries exhausted", "attempts", attempt+1, "error", err)
			return false
		}

		metrics.JobRetries.WithLabelValues(j.cfg.Name).Inc()
		j.logger.Warn("job failed, retrying", "attempt", attempt+1, "backoff", j.cfg.Backoff, "error", err)
		if err := j.sleep(ctx, j.cfg.Backoff); err != nil {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Tree is the root supervisor of the long-running process.
type Tree struct {
	root *suture.Supervisor
}

// NewTree creates a supervisor logging its events through logger and adds services to it.
func NewTree(logger *log.Logger, services ...suture.Service) *Tree {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	handler := &sutureslog.Handler{Logger: shared.SlogLogger(logger)}
	root := suture.New("scrobblex", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	for _, svc := range services {
		root.Add(svc)
	}
	return &Tree{root: root}
}

// Add starts supervising svc.
func (t *Tree) Add(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The returned channel yields the result once the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
