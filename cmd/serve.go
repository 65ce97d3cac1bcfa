package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/spotalytics/internal/server"
	"github.com/desertthunder/spotalytics/internal/services"
	"github.com/desertthunder/spotalytics/internal/session"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = int(port)
	}

	auth, err := services.NewAuthenticator(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := session.NewStore(ctx, r.config, db)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			r.logger.Warn("failed to close session store", "error", err)
		}
	}()

	if sweeper, ok := store.(*session.DatabaseStore); ok {
		go sweeper.Sweep(ctx, session.SweepInterval, r.logger)
	}

	app := server.NewApp(server.Deps{
		Config:   r.config,
		DB:       db,
		Auth:     auth,
		Sessions: session.NewManager(store, r.config.Session, r.logger),
		Logger:   r.logger,
	})

	r.logger.Info("session store ready", "backend", r.config.Session.Backend)
	return server.New(r.config.Server.Addr(), app.Handler(), r.logger).Start(ctx)
}
