package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/jmoiron/sqlx"
)

// ReportRepository runs the aggregate and export queries over a user's mirrored library.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new [ReportRepository] with the given database connection
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Track names are read from the occurrence rows, artist and album names from the caches.
var topQueries = map[models.MediaType]string{
	models.MediaTracks: `
		SELECT t.spotify_id AS spotify_id, MIN(t.name) AS name, COUNT(*) AS freq
		FROM tracks t
		JOIN playlists p ON p.spotify_id = t.playlist_id
		WHERE p.user_id = ?
		GROUP BY t.spotify_id
		ORDER BY freq DESC, name ASC, spotify_id ASC
		LIMIT ?
	`,
	models.MediaArtists: `
		SELECT a.spotify_id AS spotify_id, a.name AS name, COUNT(*) AS freq
		FROM tracks t
		JOIN playlists p ON p.spotify_id = t.playlist_id
		JOIN artists a ON a.spotify_id = t.artist_id
		WHERE p.user_id = ?
		GROUP BY a.spotify_id, a.name
		ORDER BY freq DESC, name ASC, spotify_id ASC
		LIMIT ?
	`,
	models.MediaAlbums: `
		SELECT al.spotify_id AS spotify_id, al.name AS name, COUNT(*) AS freq
		FROM tracks t
		JOIN playlists p ON p.spotify_id = t.playlist_id
		JOIN albums al ON al.spotify_id = t.album_id
		WHERE p.user_id = ?
		GROUP BY al.spotify_id, al.name
		ORDER BY freq DESC, name ASC, spotify_id ASC
		LIMIT ?
	`,
}

// TopN counts how often each item of the media type occurs across the user's playlists and
// returns the n most frequent, most frequent first. Ties are ordered by name, then ID.
func (r *ReportRepository) TopN(ctx context.Context, userID string, media models.MediaType, n int) ([]models.Frequency, error) {
	query, ok := topQueries[media]
	if !ok {
		return nil, fmt.Errorf("%w: unknown media type %q", shared.ErrInvalidArgument, media)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: top must be at least 1, got %d", shared.ErrInvalidArgument, n)
	}

	rows := []models.Frequency{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), userID, n); err != nil {
		return nil, fmt.Errorf("failed to query top %s: %w", media, err)
	}
	return rows, nil
}

// ExportRows joins every track occurrence of the user with its playlist, artist and album.
//
// Tracks whose artist or album is not cached are left out.
func (r *ReportRepository) ExportRows(ctx context.Context, userID string) ([]models.ReportRow, error) {
	query := r.db.Rebind(`
		SELECT
			p.name AS playlist_name,
			t.name AS track_name,
			ar.name AS artist_name,
			al.name AS album_name,
			al.release_date AS album_release_date,
			p.spotify_id AS playlist_spotify_id,
			t.spotify_id AS track_spotify_id,
			ar.spotify_id AS artist_spotify_id,
			al.spotify_id AS album_spotify_id
		FROM tracks t
		JOIN playlists p ON p.spotify_id = t.playlist_id
		JOIN artists ar ON ar.spotify_id = t.artist_id
		JOIN albums al ON al.spotify_id = t.album_id
		WHERE p.user_id = ?
		ORDER BY p.name, t.id
	`)

	rows := []models.ReportRow{}
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to query export rows: %w", err)
	}
	return rows, nil
}
