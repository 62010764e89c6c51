package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scrobblex/internal/scheduler"
	"github.com/desertthunder/scrobblex/internal/server"
	"github.com/desertthunder/scrobblex/internal/tasks"
	"github.com/desertthunder/scrobblex/internal/ui"
)

// watch prints progress updates until the returned stop function is called.
func (r *Runner) watch() (chan<- tasks.ProgressUpdate, func()) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.Assemble, tasks.Prefetch, tasks.Backfill:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.Commit:
				r.writePlain("💾 %s\n", update.Message)
			default:
				if update.Step == 0 {
					r.writePlain("\n📤 %s: %s\n", update.Phase, update.Message)
				} else {
					r.writePlain("   %s\n", update.Message)
				}
			}
		}
	}()

	return progressCh, func() {
		close(progressCh)
		<-done
	}
}

// interactive runs work behind the terminal progress view. Logging below error level is muted while the
// view owns the terminal.
func (r *Runner) interactive(ctx context.Context, title string, work ui.Work) error {
	level := r.logger.GetLevel()
	r.logger.SetLevel(log.ErrorLevel)
	defer r.logger.SetLevel(level)

	return ui.Run(ctx, r.output, title, work)
}

// Sync runs one synchronization pass and prints its report.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	asJSON := cmd.Bool("json")

	var report *tasks.SyncReport
	var err error
	switch {
	case asJSON:
		report, err = r.engine.RunSync(ctx, nil)
	case r.styled():
		err = r.interactive(ctx, "Scrobble sync", func(ctx context.Context, progress chan<- tasks.ProgressUpdate) error {
			var runErr error
			report, runErr = r.engine.RunSync(ctx, progress)
			return runErr
		})
	default:
		r.writePlain("Starting scrobble sync...\n\n")
		progressCh, stop := r.watch()
		report, err = r.engine.RunSync(ctx, progressCh)
		stop()
	}

	if report != nil {
		if asJSON {
			if werr := r.writeJSON(report, cmd.Bool("pretty")); werr != nil {
				return werr
			}
		} else {
			r.writeSyncReport(report)
		}
	}

	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

func (r *Runner) writeSyncReport(report *tasks.SyncReport) {
	r.writePlain("\n")
	r.writePlainHeader("Sync Summary")
	r.writePlain("Pending:     %d\n", report.Pending)
	r.writePlain("Filtered:    %d\n", report.Filtered)
	r.writePlain("Processed:   %d\n", report.Processed)
	r.writePlain("Errored:     %d\n", report.Errored)
	r.writePlain("Skipped:     %d\n", report.Skipped)
	r.writePlain("Quarantined: %d\n", report.Quarantined)
	if report.Superseded > 0 {
		r.writePlain("Superseded:  %d (edited during the run, left pending)\n", report.Superseded)
	}
	r.writePlain("Duration:    %s\n", report.Duration.Round(time.Millisecond))
	if report.Aborted {
		r.writePlain("\n⚠️  Run aborted: %s\n", report.Reason)
	}
}

// Cleanup applies retention once.
func (r *Runner) Cleanup(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	report, err := r.engine.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Cleanup Summary")
	r.writePlain("Processed events removed: %d\n", report.Processed)
	r.writePlain("Stale events removed:     %d\n", report.Stale)
	r.writePlain("Orphaned errors removed:  %d\n", report.Orphaned)
	return nil
}

// Backfill records events for one user's or every eligible user's existing reading state.
func (r *Runner) Backfill(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	target := cmd.String("user")
	if target != tasks.BackfillAll {
		user, err := r.resolveUser(ctx, target)
		if err != nil {
			return err
		}
		target = user.ID()
	}

	asJSON := cmd.Bool("json")

	var report *tasks.BackfillReport
	var err error
	switch {
	case asJSON:
		report, err = r.engine.Backfill(ctx, target, nil)
	case r.styled():
		err = r.interactive(ctx, "Backfill", func(ctx context.Context, progress chan<- tasks.ProgressUpdate) error {
			var runErr error
			report, runErr = r.engine.Backfill(ctx, target, progress)
			return runErr
		})
	default:
		progressCh, stop := r.watch()
		report, err = r.engine.Backfill(ctx, target, progressCh)
		stop()
	}
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	if asJSON {
		return r.writeJSON(report, cmd.Bool("pretty"))
	}
	return r.writePlainln("✓ Backfilled %d user(s), %d event(s) recorded", report.Users, report.Events)
}

// jobs builds the scheduled sync and cleanup jobs.
func (r *Runner) jobs() []*scheduler.Job {
	cfg := r.config.Sync

	syncJob := scheduler.NewJob(scheduler.JobConfig{
		Name:       "sync",
		Interval:   cfg.Interval.Duration,
		Retries:    cfg.JobRetries,
		Backoff:    cfg.JobRetryBackoff.Duration,
		RunOnStart: true,
	}, func(ctx context.Context) error {
		_, err := r.engine.RunSync(ctx, nil)
		return err
	}, r.logger)

	cleanupJob := scheduler.NewJob(scheduler.JobConfig{
		Name:     "cleanup",
		Interval: cfg.CleanupInterval.Duration,
		Retries:  cfg.JobRetries,
		Backoff:  cfg.JobRetryBackoff.Duration,
	}, func(ctx context.Context) error {
		_, err := r.engine.Cleanup(ctx)
		return err
	}, r.logger)

	return []*scheduler.Job{syncJob, cleanupJob}
}

// Serve runs the scheduled jobs and the operator HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := scheduler.NewTree(r.logger)
	for _, job := range r.jobs() {
		tree.Add(job)
	}

	if !cmd.Bool("no-http") {
		addr := cmd.String("addr")
		if addr == "" {
			addr = r.config.Server.Addr()
		}

		router := server.NewRouter(server.Deps{
			Events: r.events,
			Errors: r.errors,
			Engine: r.engine,
			DB:     r.db,
			Logger: r.logger,
		})
		tree.Add(server.NewService(addr, router, r.logger))
		r.logger.Info("operator API listening", "addr", addr)
	}

	r.logger.Info("scheduler started",
		"sync_interval", r.config.Sync.Interval.Duration,
		"cleanup_interval", r.config.Sync.CleanupInterval.Duration,
	)

	err := tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler stopped: %w", err)
	}
	r.logger.Info("scheduler stopped")
	return nil
}
