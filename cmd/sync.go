package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/spotalytics/internal/repositories"
	"github.com/desertthunder/spotalytics/internal/server"
	"github.com/desertthunder/spotalytics/internal/services"
	"github.com/desertthunder/spotalytics/internal/tasks"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 5 * time.Minute

// authorize runs the browser authorization-code flow on the configured redirect URI.
func (r *Runner) authorize(ctx context.Context, timeout time.Duration) (*services.Authenticator, *oauth2.Token, error) {
	auth, err := services.NewAuthenticator(r.config.Credentials.Spotify)
	if err != nil {
		return nil, nil, err
	}

	ln, path, err := server.ListenRedirect(r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return nil, nil, err
	}

	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	authCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, err := server.Authorize(authCtx, auth, ln, path, r.openBrowser, r.logger)
	if err != nil {
		return nil, nil, err
	}
	return auth, token, nil
}

// syncEngine authorizes with Spotify and builds a [tasks.SyncEngine] storing into db.
func (r *Runner) syncEngine(ctx context.Context, db *sqlx.DB, workers int, timeout time.Duration) (*tasks.SyncEngine, error) {
	auth, token, err := r.authorize(ctx, timeout)
	if err != nil {
		return nil, err
	}

	ctx = r.oauthContext(ctx)
	client := auth.Client(ctx, token, func(t *oauth2.Token) {
		r.logger.Debug("access token issued", "expiry", t.Expiry)
	})

	opts := []services.SpotifyOption{
		services.WithLimiter(services.NewLimiter(r.config.Sync.RequestsPerSecond)),
		services.WithPageSize(r.config.Sync.PageSize),
	}
	if u := r.config.Credentials.Spotify.APIURL; u != "" {
		opts = append(opts, services.WithAPIURL(u))
	}

	if workers <= 0 {
		workers = r.config.Sync.Workers
	}

	catalog := services.NewSpotifyService(client, opts...)
	return tasks.NewSyncEngine(catalog, repositories.NewLibraryRepository(db), workers, r.logger), nil
}

// Sync mirrors the playlists of the authorized (or given) user into the database.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := r.syncEngine(ctx, db, int(cmd.Int("workers")), cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progress {
			if update.Phase == tasks.FetchTracks {
				r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
				continue
			}
			r.writePlain("%s\n", update.Message)
		}
	}()

	result, err := engine.Run(ctx, cmd.String("user"), progress)
	close(progress)
	<-printed
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	r.writePlainHeader(fmt.Sprintf("Synced library of %s", result.UserID))
	r.writePlain("Playlists: %d\n", result.Playlists)
	r.writePlain("Tracks:    %d\n", result.Tracks)
	r.writePlain("Artists:   %d (%d new)\n", result.Artists, result.Inserted.Artists)
	r.writePlain("Albums:    %d (%d new)\n", result.Albums, result.Inserted.Albums)
	if result.Skipped > 0 {
		r.writePlain("Skipped:   %d local files or episodes\n", result.Skipped)
	}
	r.writePlain("Took:      %s\n", result.Duration.Round(time.Millisecond))
	return nil
}
