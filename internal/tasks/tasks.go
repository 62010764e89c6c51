package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/services"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// Fatal run errors. Both wrap the tracker sentinel that caused them.
var (
	ErrLicenseInvalid     = errors.New("license is invalid or expired")
	ErrServiceUnreachable = errors.New("tracking service is unreachable")
)

// errAbortRun stops a run cleanly without reporting a failure.
var errAbortRun = errors.New("run aborted")

// fatalError maps a fatal tracker error to the run error returned by [Engine.RunSync].
func fatalError(err error) error {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return fmt.Errorf("%w: %w", ErrLicenseInvalid, err)
	case errors.Is(err, services.ErrUnreachable):
		return fmt.Errorf("%w: %w", ErrServiceUnreachable, err)
	default:
		return err
	}
}

// EventStore is the event persistence used by the engine.
type EventStore interface {
	UpsertPending(ctx context.Context, evt *models.ScrobbleEvent) error
	GetPending(ctx context.Context, userID, seriesID string, t models.EventType) (*models.ScrobbleEvent, error)
	RemovePending(ctx context.Context, userID, seriesID string, t models.EventType) (bool, error)
	FetchPending(ctx context.Context, t models.EventType) ([]*models.ScrobbleEvent, error)
	DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePendingForUsersWithoutCredential(ctx context.Context) (int64, error)
	NewBatch() models.UnitOfWork
}

// supersededCounter is implemented by units of work that skip transitions for rows edited after they were read.
type supersededCounter interface {
	Superseded() int
}

// ErrorStore is the quarantine and error record persistence used by the engine.
type ErrorStore interface {
	Create(ctx context.Context, rec *models.ScrobbleError) (bool, error)
	HasQuarantine(ctx context.Context, seriesID string) (bool, error)
	FetchQuarantined(ctx context.Context) ([]string, error)
	DeleteForSeries(ctx context.Context, seriesID string) (int64, error)
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// UserStore is the user lookup used by the engine.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListNeedingBackfill(ctx context.Context) ([]*models.User, error)
	MarkBackfilled(ctx context.Context, id string, at time.Time) error
}

// SeriesStore is the series and per-user reading state lookup used by the engine.
type SeriesStore interface {
	GetSeries(ctx context.Context, id string) (*models.Series, error)
	UpdateMetadata(ctx context.Context, id string, meta models.SeriesMetadata) error
	Progress(ctx context.Context, userID, seriesID string) (models.Progress, error)
	WantToRead(ctx context.Context, userID string) ([]string, error)
	Ratings(ctx context.Context, userID string) ([]models.SeriesRating, error)
	Reviews(ctx context.Context, userID string) ([]models.SeriesReview, error)
	ProgressSeries(ctx context.Context, userID string) ([]string, error)
}

// Stores groups the persistence dependencies of an [Engine].
type Stores struct {
	Events EventStore
	Errors ErrorStore
	Users  UserStore
	Series SeriesStore
}

// Options tunes a sync run.
type Options struct {
	CommitEvery       int           // Processed events between partial commits
	LowWater          int           // Quota above which only a short paced pause is taken
	Throttle          time.Duration // Spacing between deliveries above the low-water mark; zero disables
	LowQuotaPause     time.Duration // Pause after a delivery at or below the low-water mark
	RateLimitCooldown time.Duration // Sleep before retrying a rate-limited delivery
	RateLimitRetries  int           // Local retries of a rate-limited delivery
	Retention         time.Duration // Age after which processed events are deleted
}

// NewOptions converts the sync configuration section into [Options].
func NewOptions(cfg shared.SyncConfig) Options {
	return Options{
		CommitEvery:       cfg.CommitEvery,
		LowWater:          cfg.LowWater,
		Throttle:          cfg.Throttle.Duration,
		LowQuotaPause:     cfg.LowQuotaPause.Duration,
		RateLimitCooldown: cfg.RateLimitCooldown.Duration,
		RateLimitRetries:  cfg.RateLimitRetries,
		Retention:         cfg.Retention.Duration,
	}
}

// DefaultOptions returns the options of the embedded default configuration.
func DefaultOptions() Options {
	return NewOptions(shared.DefaultConfig().Sync)
}
