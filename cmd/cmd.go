// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (text, json, csv, markdown)",
		Value:   "text",
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

func userFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "User id or name",
		Required: required,
	}
}

func seriesFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "series",
		Aliases:  []string{"s"},
		Usage:    "Series id or name",
		Required: required,
	}
}

// syncCommand runs one synchronization pass
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Deliver pending scrobble events to the tracker",
		Flags:  jsonFlags(),
		Action: r.Sync,
	}
}

// cleanupCommand applies retention
func cleanupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "cleanup",
		Usage:  "Delete processed events past retention, stale pending events and orphaned error records",
		Flags:  jsonFlags(),
		Action: r.Cleanup,
	}
}

// backfillCommand seeds events from existing reading state
func backfillCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Record events for reading state that predates the user's credential",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "User id or name, or \"all\"",
				Value:   "all",
			},
		}, jsonFlags()...),
		Action: r.Backfill,
	}
}

// serveCommand runs the scheduler and the operator HTTP server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run scheduled sync and cleanup jobs and the operator HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides server.host and server.port",
			},
			&cli.BoolFlag{
				Name:  "no-http",
				Usage: "Run the scheduled jobs without the HTTP API",
			},
		},
		Action: r.Serve,
	}
}

// trackCommand records reader activity
func trackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Record reader activity and enqueue scrobble events",
		Commands: []*cli.Command{
			{
				Name:  "read",
				Usage: "Update reading progress and record a chapter read",
				Flags: []cli.Flag{
					userFlag(true),
					seriesFlag(true),
					&cli.FloatFlag{
						Name:  "volume",
						Usage: "Volume number",
					},
					&cli.FloatFlag{
						Name:  "chapter",
						Usage: "Chapter number",
					},
					&cli.IntFlag{
						Name:  "pages",
						Usage: "Total pages read in the series",
						Value: 1,
					},
				},
				Action: r.TrackRead,
			},
			{
				Name:  "rate",
				Usage: "Set a rating",
				Flags: []cli.Flag{
					userFlag(true),
					seriesFlag(true),
					&cli.FloatFlag{
						Name:     "score",
						Usage:    "Rating from 0 to 5",
						Required: true,
					},
				},
				Action: r.TrackRating,
			},
			{
				Name:  "review",
				Usage: "Set a review",
				Flags: []cli.Flag{
					userFlag(true),
					seriesFlag(true),
					&cli.StringFlag{
						Name:  "title",
						Usage: "Review title",
					},
					&cli.StringFlag{
						Name:     "body",
						Usage:    "Review body",
						Required: true,
					},
				},
				Action: r.TrackReview,
			},
			{
				Name:  "want",
				Usage: "Add a series to or remove it from want-to-read",
				Flags: []cli.Flag{
					userFlag(true),
					seriesFlag(true),
					&cli.BoolFlag{
						Name:  "remove",
						Usage: "Remove instead of add",
					},
				},
				Action: r.TrackWantToRead,
			},
		},
	}
}

// errorsCommand inspects and clears quarantine records
func errorsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "errors",
		Usage: "Scrobble error records",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List scrobble error records",
				Flags: []cli.Flag{
					seriesFlag(false),
					userFlag(false),
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Filter by kind (series, credential)",
					},
					formatFlag(),
				},
				Action: r.ErrorsList,
			},
			{
				Name:  "clear",
				Usage: "Remove a series' error records so its events are delivered again",
				Flags: []cli.Flag{
					seriesFlag(true),
				},
				Action: r.ErrorsClear,
			},
		},
	}
}

// eventsCommand inspects the event queue
func eventsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Scrobble events",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List scrobble events",
				Flags: []cli.Flag{
					userFlag(false),
					seriesFlag(false),
					&cli.StringFlag{
						Name:  "type",
						Usage: "Filter by event type",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (pending, processed, errored)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of events to list",
						Value: 100,
					},
					formatFlag(),
				},
				Action: r.EventsList,
			},
		},
	}
}

// credentialCommand verifies tracker credentials
func credentialCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "credential",
		Usage: "Tracker credentials",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Ask the tracker whether a user's credential is valid",
				Flags: []cli.Flag{
					userFlag(true),
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Credential provider (AniList, Mal)",
						Value: "AniList",
					},
				},
				Action: r.CredentialCheck,
			},
			{
				Name:  "set",
				Usage: "Store a user's tracker credential",
				Flags: []cli.Flag{
					userFlag(true),
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Credential token",
						Required: true,
					},
				},
				Action: r.CredentialSet,
			},
		},
	}
}

// userCommand manages users
func userCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Users",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a user",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Unique user name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "token",
						Usage: "Tracker credential token",
					},
				},
				Action: r.UserAdd,
			},
			{
				Name:   "list",
				Usage:  "List users",
				Flags:  jsonFlags(),
				Action: r.UserList,
			},
		},
	}
}

// libraryCommand manages libraries
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "library",
		Usage: "Libraries",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a library",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Library name",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "scrobbling",
						Usage: "Allow scrobbling for series in this library",
						Value: true,
					},
				},
				Action: r.LibraryAdd,
			},
			{
				Name:  "scrobbling",
				Usage: "Enable or disable scrobbling for a library",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "library",
						Usage:    "Library id or name",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "enabled",
						Usage: "Allow scrobbling",
					},
				},
				Action: r.LibraryScrobbling,
			},
			{
				Name:   "list",
				Usage:  "List libraries",
				Flags:  jsonFlags(),
				Action: r.LibraryList,
			},
		},
	}
}

func metadataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:  "anilist",
			Usage: "AniList id",
		},
		&cli.Int64Flag{
			Name:  "mal",
			Usage: "MyAnimeList id",
		},
		&cli.StringFlag{
			Name:  "links",
			Usage: "Comma-separated web links",
		},
	}
}

// seriesCommand manages series
func seriesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "series",
		Usage: "Series",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a series",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "library",
						Usage:    "Library id or name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Series name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "localized-name",
						Usage: "Localized series name",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Media format (manga, comic, book, light_novel)",
						Value: "manga",
					},
					&cli.BoolFlag{
						Name:  "dont-match",
						Usage: "Exclude the series from matching",
					},
				}, metadataFlags()...),
				Action: r.SeriesAdd,
			},
			{
				Name:   "rematch",
				Usage:  "Replace a series' external ids and clear its quarantine",
				Flags:  append([]cli.Flag{seriesFlag(true)}, metadataFlags()...),
				Action: r.SeriesRematch,
			},
			{
				Name:  "list",
				Usage: "List series",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "library",
						Usage: "Library id or name",
					},
				}, jsonFlags()...),
				Action: r.SeriesList,
			},
		},
	}
}
