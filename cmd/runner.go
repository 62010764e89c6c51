package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/repositories"
	"github.com/desertthunder/scrobblex/internal/services"
	"github.com/desertthunder/scrobblex/internal/shared"
	"github.com/desertthunder/scrobblex/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and the engine are opened lazily by the first command that needs them.
type Runner struct {
	config     *shared.Config
	configPath string
	tracker    services.Tracker
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db     *sql.DB
	users  *repositories.UserRepository
	series *repositories.SeriesRepository
	events *repositories.EventRepository
	errors *repositories.ErrorRepository
	engine *tasks.Engine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Tracker    services.Tracker
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		tracker:    opts.Tracker,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, syncCommand, cleanupCommand, backfillCommand, serveCommand,
		trackCommand, errorsCommand, eventsCommand, credentialCommand,
		userCommand, libraryCommand, seriesCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads configuration unless one was injected.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); r.configPath == "" && path != "" {
		r.configPath = path
		config, err := shared.LoadConfig(path)
		switch {
		case errors.Is(err, shared.ErrMissingConfig):
			r.logger.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return ctx, err
		default:
			r.config = config
		}
	}

	level := r.config.Log.Level
	if l := cmd.String("log-level"); l != "" {
		level = l
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(level))

	return ctx, nil
}

func (r *Runner) after(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// Close releases the database.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.engine = nil
	return err
}

// open connects storage, applies migrations and builds the engine.
func (r *Runner) open(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}

	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return err
		}
		if r.config.Database.Path != ":memory:" {
			shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		}
		r.db = db
	}

	if err := shared.RunMigrations(ctx, r.db, r.logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.users = repositories.NewUserRepository(r.db)
	r.series = repositories.NewSeriesRepository(r.db)
	r.events = repositories.NewEventRepository(r.db)
	r.errors = repositories.NewErrorRepository(r.db)

	if r.tracker == nil {
		client := services.NewTrackerClient(r.config.Tracker, r.httpClient)
		r.tracker = services.NewBreakerTracker(client, 3, time.Minute, r.logger)
	}

	stores := tasks.Stores{Events: r.events, Errors: r.errors, Users: r.users, Series: r.series}
	r.engine = tasks.NewEngine(stores, r.tracker, tasks.NewOptions(r.config.Sync), r.logger)
	return nil
}

// resolveUser finds a user by id, then by name.
func (r *Runner) resolveUser(ctx context.Context, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}

	user, err := r.users.GetUser(ctx, ref)
	if errors.Is(err, shared.ErrNotFound) {
		return r.users.GetByName(ref)
	}
	return user, err
}

// resolveSeries finds a series by id, then by exact name.
func (r *Runner) resolveSeries(ctx context.Context, ref string) (*models.Series, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: --series is required", shared.ErrMissingArgument)
	}

	series, err := r.series.GetSeries(ctx, ref)
	if !errors.Is(err, shared.ErrNotFound) {
		return series, err
	}

	matches, err := r.series.List(map[string]any{"name": ref})
	switch {
	case err != nil:
		return nil, err
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: series %q", shared.ErrNotFound, ref)
	case len(matches) > 1:
		return nil, fmt.Errorf("%w: %d series named %q, use the id", shared.ErrInvalidArgument, len(matches), ref)
	}
	return matches[0], nil
}

// resolveLibrary finds a library by id or name.
func (r *Runner) resolveLibrary(ctx context.Context, ref string) (*models.Library, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: --library is required", shared.ErrMissingArgument)
	}

	libraries, err := r.series.ListLibraries(ctx)
	if err != nil {
		return nil, err
	}
	for _, lib := range libraries {
		if lib.ID == ref || strings.EqualFold(lib.Name, ref) {
			return lib, nil
		}
	}
	return nil, fmt.Errorf("%w: library %q", shared.ErrNotFound, ref)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// styled reports whether output goes to a terminal.
func (r *Runner) styled() bool {
	f, ok := r.output.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
