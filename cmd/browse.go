package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spotalytics/internal/repositories"
	"github.com/desertthunder/spotalytics/internal/services"
	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/desertthunder/spotalytics/internal/tasks"
	"github.com/desertthunder/spotalytics/internal/ui"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
)

// browserSyncer authorizes with Spotify the first time the TUI starts a sync.
type browserSyncer struct {
	runner *Runner
	db     *sqlx.DB
	engine *tasks.SyncEngine
}

func (s *browserSyncer) Run(ctx context.Context, userID string, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error) {
	if s.engine == nil {
		engine, err := s.runner.syncEngine(ctx, s.db, 0, defaultAuthTimeout)
		if err != nil {
			return nil, err
		}
		s.engine = engine
	}
	return s.engine.Run(ctx, userID, progress)
}

// resolveBrowseUser returns userID, or the only synced user when userID is empty.
func resolveBrowseUser(ctx context.Context, db *sqlx.DB, userID string) (string, error) {
	if userID != "" {
		return userID, nil
	}

	users, err := repositories.NewUserRepository(db).List(ctx)
	if err != nil {
		return "", err
	}
	if len(users) != 1 {
		return "", fmt.Errorf("%w: --user is required when %d users are synced", shared.ErrMissingArgument, len(users))
	}
	return users[0].UserID, nil
}

// Browse launches the interactive terminal UI over the synced library.
func (r *Runner) Browse(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	userID, err := resolveBrowseUser(ctx, db, cmd.String("user"))
	if err != nil {
		return err
	}

	// Logs would corrupt the TUI rendering.
	logPath := cmd.String("log-file")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	fileLogger, f, err := shared.NewFileLogger(logPath)
	if err != nil {
		return err
	}
	defer f.Close()
	fileLogger.SetLevel(r.logger.GetLevel())
	r.logger = fileLogger

	var syncer ui.Syncer
	if _, err := services.NewAuthenticator(r.config.Credentials.Spotify); err == nil {
		syncer = &browserSyncer{runner: r, db: db}
	} else {
		r.logger.Warn("syncing disabled", "error", err)
	}

	model := ui.NewModel(ctx, userID, repositories.NewLibraryRepository(db), syncer)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
