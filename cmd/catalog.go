package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// UserAdd creates a user, optionally with a tracker credential.
func (r *Runner) UserAdd(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	user := models.NewUser(cmd.String("name"), cmd.String("token"))
	if err := r.users.Create(user); err != nil {
		return err
	}

	r.logger.Info("user created", "user_id", user.ID(), "name", user.Name())
	return r.writePlain("✓ Created user %s (%s)\n", user.Name(), user.ID())
}

// UserList prints every user.
func (r *Runner) UserList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	users, err := r.users.List(map[string]any{})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		type userView struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			HasCredential bool   `json:"hasCredential"`
			Expired       bool   `json:"credentialExpired"`
			Backfilled    bool   `json:"backfilled"`
		}
		views := make([]userView, 0, len(users))
		for _, u := range users {
			views = append(views, userView{u.ID(), u.Name(), u.HasCredential(), u.CredentialExpired(), u.BackfillCompleted()})
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Users (%d)", len(users)))
	for _, u := range users {
		credential := "no credential"
		switch {
		case u.CredentialExpired():
			credential = "credential expired"
		case u.HasCredential():
			credential = "credential set"
		}
		r.writePlain("%s  %-20s  %s\n", u.ID(), u.Name(), credential)
	}
	return nil
}

// CredentialSet stores a user's tracker credential.
func (r *Runner) CredentialSet(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	user, err := r.resolveUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	token := strings.TrimSpace(cmd.String("token"))
	if token == "" {
		return fmt.Errorf("%w: --token cannot be empty", shared.ErrMissingArgument)
	}
	if err := r.users.SetCredential(ctx, user.ID(), token); err != nil {
		return err
	}

	return r.writePlain("✓ Credential stored for %s\n", user.Name())
}

// LibraryAdd creates a library.
func (r *Runner) LibraryAdd(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	lib := &models.Library{Name: cmd.String("name"), AllowScrobbling: cmd.Bool("scrobbling")}
	if err := r.series.CreateLibrary(lib); err != nil {
		return err
	}

	return r.writePlain("✓ Created library %s (%s)\n", lib.Name, lib.ID)
}

// LibraryScrobbling toggles whether a library's series may be scrobbled.
func (r *Runner) LibraryScrobbling(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	lib, err := r.resolveLibrary(ctx, cmd.String("library"))
	if err != nil {
		return err
	}

	enabled := cmd.Bool("enabled")
	if err := r.series.SetLibraryScrobbling(ctx, lib.ID, enabled); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return r.writePlain("✓ Scrobbling %s for %s\n", state, lib.Name)
}

// LibraryList prints every library.
func (r *Runner) LibraryList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	libraries, err := r.series.ListLibraries(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(libraries, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Libraries (%d)", len(libraries)))
	for _, lib := range libraries {
		r.writePlain("%s  %-20s  scrobbling=%t\n", lib.ID, lib.Name, lib.AllowScrobbling)
	}
	return nil
}

func metadataFromFlags(cmd *cli.Command) models.SeriesMetadata {
	return models.SeriesMetadata{
		AniListID: cmd.Int64("anilist"),
		MalID:     cmd.Int64("mal"),
		WebLinks:  cmd.String("links"),
	}
}

// SeriesAdd creates a series in a library.
func (r *Runner) SeriesAdd(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	lib, err := r.resolveLibrary(ctx, cmd.String("library"))
	if err != nil {
		return err
	}

	format := models.ParseMediaFormat(cmd.String("format"))
	if format == models.FormatUnknown {
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, cmd.String("format"))
	}

	series := models.NewSeries(lib.ID, cmd.String("name"), format)
	series.SetLocalizedName(cmd.String("localized-name"))
	series.SetDontMatch(cmd.Bool("dont-match"))
	series.SetMetadata(metadataFromFlags(cmd))

	if err := r.series.Create(series); err != nil {
		return err
	}

	return r.writePlain("✓ Created series %s (%s) in %s\n", series.Name(), series.ID(), lib.Name)
}

// SeriesRematch replaces a series' external ids and clears its quarantine.
func (r *Runner) SeriesRematch(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	series, err := r.resolveSeries(ctx, cmd.String("series"))
	if err != nil {
		return err
	}

	meta := metadataFromFlags(cmd)
	if meta.AniListID == 0 && meta.MalID == 0 && meta.WebLinks == "" {
		return fmt.Errorf("%w: one of --anilist, --mal or --links is required", shared.ErrMissingArgument)
	}

	if err := r.engine.Rematch(ctx, series.ID(), meta); err != nil {
		return err
	}
	return r.writePlain("✓ Rematched %s, quarantine cleared\n", series.Name())
}

// SeriesList prints series, optionally within one library.
func (r *Runner) SeriesList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	criteria := map[string]any{}
	if ref := cmd.String("library"); ref != "" {
		lib, err := r.resolveLibrary(ctx, ref)
		if err != nil {
			return err
		}
		criteria["library_id"] = lib.ID
	}

	list, err := r.series.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		type seriesView struct {
			ID        string `json:"id"`
			LibraryID string `json:"libraryId"`
			Name      string `json:"name"`
			Format    string `json:"format"`
			AniListID int64  `json:"aniListId,omitempty"`
			MalID     int64  `json:"malId,omitempty"`
			DontMatch bool   `json:"dontMatch"`
		}
		views := make([]seriesView, 0, len(list))
		for _, s := range list {
			meta := s.Metadata()
			views = append(views, seriesView{s.ID(), s.LibraryID(), s.Name(), s.Format().String(), meta.AniListID, meta.MalID, s.DontMatch()})
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Series (%d)", len(list)))
	for _, s := range list {
		r.writePlain("%s  %-30s  %s\n", s.ID(), s.Name(), s.Format())
	}
	return nil
}
