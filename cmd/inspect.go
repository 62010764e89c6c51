package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scrobblex/internal/formatter"
	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/services"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// EventsList prints scrobble events matching the flags.
func (r *Runner) EventsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	criteria := map[string]any{}
	if ref := cmd.String("user"); ref != "" {
		user, err := r.resolveUser(ctx, ref)
		if err != nil {
			return err
		}
		criteria["user_id"] = user.ID()
	}
	if ref := cmd.String("series"); ref != "" {
		series, err := r.resolveSeries(ctx, ref)
		if err != nil {
			return err
		}
		criteria["series_id"] = series.ID()
	}
	if t := cmd.String("type"); t != "" {
		eventType, err := models.ParseEventType(t)
		if err != nil {
			return err
		}
		criteria["type"] = eventType
	}

	switch status := strings.ToLower(cmd.String("status")); status {
	case "":
	case "pending", "processed", "errored":
		criteria[status] = true
	default:
		return fmt.Errorf("%w: --status must be pending, processed or errored", shared.ErrInvalidArgument)
	}

	if limit := int(cmd.Int("limit")); limit > 0 {
		criteria["limit"] = limit
	}

	events, err := r.events.List(ctx, criteria)
	if err != nil {
		return err
	}
	return formatter.WriteEvents(r.output, format, events, r.styled())
}

// ErrorsList prints scrobble error records.
func (r *Runner) ErrorsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	criteria := map[string]any{"kind": cmd.String("kind")}
	if ref := cmd.String("series"); ref != "" {
		series, err := r.resolveSeries(ctx, ref)
		if err != nil {
			return err
		}
		criteria["series_id"] = series.ID()
	}
	if ref := cmd.String("user"); ref != "" {
		user, err := r.resolveUser(ctx, ref)
		if err != nil {
			return err
		}
		criteria["user_id"] = user.ID()
	}

	records, err := r.errors.List(ctx, criteria)
	if err != nil {
		return err
	}
	return formatter.WriteErrors(r.output, format, records, r.styled())
}

// ErrorsClear removes a series' error records.
func (r *Runner) ErrorsClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	series, err := r.resolveSeries(ctx, cmd.String("series"))
	if err != nil {
		return err
	}

	n, err := r.engine.ClearQuarantine(ctx, series.ID())
	if err != nil {
		return err
	}
	return r.writePlain("✓ Removed %d error record(s) for %s\n", n, series.Name())
}

func parseProvider(s string) (services.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anilist", "":
		return services.ProviderAniList, nil
	case "mal", "myanimelist":
		return services.ProviderMal, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q (must be AniList or Mal)", shared.ErrInvalidArgument, s)
	}
}

// CredentialCheck asks the tracker whether a user's credential is valid.
func (r *Runner) CredentialCheck(ctx context.Context, cmd *cli.Command) error {
	provider, err := parseProvider(cmd.String("provider"))
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	user, err := r.resolveUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}
	if !user.HasCredential() {
		return fmt.Errorf("%w: user %s has no credential", shared.ErrMissingCredentials, user.Name())
	}

	if user.CredentialExpired() {
		r.writePlain("⚠️  Credential for %s has expired locally (%s)\n", user.Name(), user.Token().Expiry.Format("2006-01-02 15:04"))
	}

	valid, err := r.tracker.CheckCredentialValid(ctx, user.Credential(), provider)
	if err != nil {
		return fmt.Errorf("credential check failed: %w", err)
	}

	if !valid {
		return r.writePlain("✗ %s credential for %s is invalid\n", provider, user.Name())
	}
	return r.writePlain("✓ %s credential for %s is valid\n", provider, user.Name())
}
