package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/jmoiron/sqlx"
)

// LibraryRepository stores the mirrored playlists and tracks of each user together with the
// shared artist and album caches.
type LibraryRepository struct {
	db *sqlx.DB
}

// NewLibraryRepository creates a new [LibraryRepository] with the given database connection
func NewLibraryRepository(db *sqlx.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// ReplaceCounts reports how many rows a [LibraryRepository.Replace] wrote.
type ReplaceCounts struct {
	DeletedPlaylists int64
	Playlists        int
	Artists          int64
	Albums           int64
	Tracks           int
}

// Replace swaps the user's mirrored playlists for lib in a single transaction.
//
// The user's existing playlists are deleted (cascading to their tracks), then playlists, artists,
// albums and tracks are inserted in that order. Artists and albums already cached are kept as
// they are. On any error nothing is changed.
func (r *LibraryRepository) Replace(ctx context.Context, lib models.Library) (ReplaceCounts, error) {
	var counts ReplaceCounts

	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := ensureUser(ctx, tx, lib.UserID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM playlists WHERE user_id = ?`), lib.UserID)
		if err != nil {
			return fmt.Errorf("failed to delete playlists: %w", err)
		}
		counts.DeletedPlaylists, _ = result.RowsAffected()

		if err := insertPlaylists(ctx, tx, lib.Playlists); err != nil {
			return err
		}
		counts.Playlists = len(lib.Playlists)

		if counts.Artists, err = insertArtists(ctx, tx, lib.Artists); err != nil {
			return err
		}
		if counts.Albums, err = insertAlbums(ctx, tx, lib.Albums); err != nil {
			return err
		}

		if err := insertTracks(ctx, tx, lib.Tracks); err != nil {
			return err
		}
		counts.Tracks = len(lib.Tracks)
		return nil
	})
	if err != nil {
		return ReplaceCounts{}, err
	}
	return counts, nil
}

func insertPlaylists(ctx context.Context, tx *sqlx.Tx, playlists []models.Playlist) error {
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO playlists (spotify_id, user_id, name) VALUES (?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare playlist insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range playlists {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, p.SpotifyID, p.UserID, p.Name); err != nil {
			return fmt.Errorf("failed to insert playlist %s: %w", p.SpotifyID, err)
		}
	}
	return nil
}

// insertArtists inserts artists missing from the cache and returns how many were new.
func insertArtists(ctx context.Context, tx *sqlx.Tx, artists []models.Artist) (int64, error) {
	query := `INSERT INTO artists (spotify_id, name) VALUES (?, ?) ON CONFLICT (spotify_id) DO NOTHING`
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare artist insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, a := range artists {
		if err := a.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}
		result, err := stmt.ExecContext(ctx, a.SpotifyID, a.Name)
		if err != nil {
			return 0, fmt.Errorf("failed to insert artist %s: %w", a.SpotifyID, err)
		}
		n, _ := result.RowsAffected()
		inserted += n
	}
	return inserted, nil
}

// insertAlbums inserts albums missing from the cache and returns how many were new.
//
// Release dates are written as YYYY-MM-DD text, which both drivers accept for a DATE column.
func insertAlbums(ctx context.Context, tx *sqlx.Tx, albums []models.Album) (int64, error) {
	query := `INSERT INTO albums (spotify_id, artist_id, name, release_date) VALUES (?, ?, ?, ?) ON CONFLICT (spotify_id) DO NOTHING`
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare album insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, a := range albums {
		if err := a.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}

		var released any
		if a.ReleaseDate != nil {
			released = a.ReleaseDate.Format("2006-01-02")
		}

		result, err := stmt.ExecContext(ctx, a.SpotifyID, a.ArtistID, a.Name, released)
		if err != nil {
			return 0, fmt.Errorf("failed to insert album %s: %w", a.SpotifyID, err)
		}
		n, _ := result.RowsAffected()
		inserted += n
	}
	return inserted, nil
}

func insertTracks(ctx context.Context, tx *sqlx.Tx, tracks []models.Track) error {
	query := `INSERT INTO tracks (spotify_id, playlist_id, artist_id, album_id, name) VALUES (?, ?, ?, ?, ?)`
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		return fmt.Errorf("failed to prepare track insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, t.SpotifyID, t.PlaylistID, t.ArtistID, t.AlbumID, t.Name); err != nil {
			return fmt.Errorf("failed to insert track %s: %w", t.SpotifyID, err)
		}
	}
	return nil
}

// Playlists returns the user's mirrored playlists ordered by name.
func (r *LibraryRepository) Playlists(ctx context.Context, userID string) ([]models.Playlist, error) {
	playlists := []models.Playlist{}
	query := r.db.Rebind(`SELECT spotify_id, user_id, name FROM playlists WHERE user_id = ? ORDER BY name, spotify_id`)
	if err := r.db.SelectContext(ctx, &playlists, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	return playlists, nil
}

// Playlist retrieves a playlist by Spotify ID, returning [shared.ErrPlaylistNotFound] when absent.
func (r *LibraryRepository) Playlist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	var p models.Playlist
	query := r.db.Rebind(`SELECT spotify_id, user_id, name FROM playlists WHERE spotify_id = ?`)
	err := r.db.GetContext(ctx, &p, query, playlistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	return &p, nil
}

// TracksForPlaylist returns the stored track rows of a playlist in insertion order.
// An unknown playlist yields an empty slice.
func (r *LibraryRepository) TracksForPlaylist(ctx context.Context, playlistID string) ([]models.Track, error) {
	tracks := []models.Track{}
	query := r.db.Rebind(`
		SELECT id, spotify_id, playlist_id, album_id, artist_id, name
		FROM tracks
		WHERE playlist_id = ?
		ORDER BY id
	`)
	if err := r.db.SelectContext(ctx, &tracks, query, playlistID); err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

// Artist retrieves a cached artist.
func (r *LibraryRepository) Artist(ctx context.Context, id string) (*models.Artist, error) {
	var a models.Artist
	if err := r.db.GetContext(ctx, &a, r.db.Rebind(`SELECT spotify_id, name FROM artists WHERE spotify_id = ?`), id); err != nil {
		return nil, fmt.Errorf("failed to query artist %s: %w", id, err)
	}
	return &a, nil
}

// Album retrieves a cached album.
func (r *LibraryRepository) Album(ctx context.Context, id string) (*models.Album, error) {
	var a models.Album
	query := r.db.Rebind(`SELECT spotify_id, artist_id, name, release_date FROM albums WHERE spotify_id = ?`)
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, fmt.Errorf("failed to query album %s: %w", id, err)
	}
	return &a, nil
}
