package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/spotalytics/internal/formatter"
	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/repositories"
	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
)

// requireUser fails with [shared.ErrUserNotFound] when userID has never been synced.
func requireUser(ctx context.Context, db *sqlx.DB, userID string) error {
	exists, err := repositories.NewUserRepository(db).Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %q has no synced library; run sync first", shared.ErrUserNotFound, userID)
	}
	return nil
}

// ReportTop prints the most frequent tracks, artists or albums of a user.
func (r *Runner) ReportTop(ctx context.Context, cmd *cli.Command) error {
	userID := cmd.String("user")
	n := int(cmd.Int("top"))
	if n < 1 {
		return fmt.Errorf("%w: --top must be positive, got %d", shared.ErrInvalidArgument, n)
	}

	media, err := models.ParseMediaType(cmd.String("type"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := requireUser(ctx, db, userID); err != nil {
		return err
	}

	freqs, err := repositories.NewReportRepository(db).TopN(ctx, userID, media, n)
	if err != nil {
		return err
	}
	r.logger.Debug("computed report", "user", userID, "type", media, "rows", len(freqs))

	if cmd.Bool("json") {
		data, err := formatter.FrequencyJSON(freqs)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	}

	return r.writePlain("%s\n", formatter.StyledBarChart(formatter.ChartTitle(userID, media, n), freqs, formatter.DefaultBarWidth))
}

// ReportExport writes the flat playlist export of a user to a CSV file.
func (r *Runner) ReportExport(ctx context.Context, cmd *cli.Command) error {
	userID := cmd.String("user")

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := requireUser(ctx, db, userID); err != nil {
		return err
	}

	rows, err := repositories.NewReportRepository(db).ExportRows(ctx, userID)
	if err != nil {
		return err
	}

	path, err := formatter.WriteCSVExport(rows, userID, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("exported playlists", "user", userID, "rows", len(rows), "path", path)
	r.writePlain("✓ Exported %d rows to %s\n", len(rows), path)
	return nil
}
