// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// serveCommand runs the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the analytics web service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on; overrides server.host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on; overrides server.port",
			},
		},
		Action: r.Serve,
	}
}

// syncCommand mirrors the authorized user's playlists
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Authorize with Spotify and mirror your playlists into the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "Spotify user whose playlists are synced (default: the authorized user)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent playlist fetches; overrides sync.workers",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser authorization",
				Value: defaultAuthTimeout,
			},
		},
		Action: r.Sync,
	}
}

// reportCommand renders reports from the mirrored library
func reportCommand(r *Runner) *cli.Command {
	userFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "user",
			Aliases:  []string{"u"},
			Usage:    "Spotify user ID",
			Required: true,
		}
	}

	return &cli.Command{
		Name:  "report",
		Usage: "Reports over a synced library",
		Commands: []*cli.Command{
			{
				Name:  "top",
				Usage: "Most frequent tracks, artists or albums across the user's playlists",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "What to count: tracks, artists or albums",
						Value:   "tracks",
					},
					&cli.IntFlag{
						Name:    "top",
						Aliases: []string{"n"},
						Usage:   "Number of entries",
						Value:   10,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ReportTop,
			},
			{
				Name:  "export",
				Usage: "Write every playlist track of the user to a CSV file",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: <user>_playlists.csv)",
					},
				},
				Action: r.ReportExport,
			},
		},
	}
}

// browseCommand returns the top-level TUI command for browsing the library.
func browseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "browse",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch interactive TUI over the synced library",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Spotify user ID (default: the only synced user)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the TUI owns the terminal",
				Value: "./tmp/spotalytics-tui.log",
			},
		},
		Action: r.Browse,
	}
}

// setupCommand handles setup operations for configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example configuration file to --config",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}
