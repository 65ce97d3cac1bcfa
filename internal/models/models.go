// package models defines the data model for the spotify analytics service
package models

import (
	"fmt"
	"strings"
	"time"
)

// Validator is implemented by every row type that is written to the store.
type Validator interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// User is a Spotify account whose library has been (or is being) mirrored.
type User struct {
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Playlist is a playlist owned by a [User].
type Playlist struct {
	SpotifyID string `db:"spotify_id" json:"spotify_id"`
	UserID    string `db:"user_id" json:"user_id"`
	Name      string `db:"name" json:"name"`
}

// Artist is an entry of the artist cache shared by all users.
type Artist struct {
	SpotifyID string `db:"spotify_id" json:"spotify_id"`
	Name      string `db:"name" json:"name"`
}

// Album is an entry of the album cache. ArtistID and ReleaseDate may be unknown.
type Album struct {
	SpotifyID   string     `db:"spotify_id" json:"spotify_id"`
	ArtistID    *string    `db:"artist_id" json:"artist_id"`
	Name        string     `db:"name" json:"name"`
	ReleaseDate *time.Time `db:"release_date" json:"release_date"`
}

// Track is one occurrence of a track in a playlist.
//
// The same Spotify track appearing in two playlists (or twice in one) is two rows.
type Track struct {
	ID         int64   `db:"id" json:"id"`
	SpotifyID  string  `db:"spotify_id" json:"spotify_id"`
	PlaylistID string  `db:"playlist_id" json:"playlist_id"`
	AlbumID    *string `db:"album_id" json:"album_id"`
	ArtistID   *string `db:"artist_id" json:"artist_id"`
	Name       string  `db:"name" json:"name"`
}

// Library is the flattened, de-duplicated snapshot of a user's playlists produced by a sync.
type Library struct {
	UserID    string
	Playlists []Playlist
	Artists   []Artist
	Albums    []Album
	Tracks    []Track
}

// Validate checks the user and every row of the library.
func (l Library) Validate() error {
	if l.UserID == "" {
		return fmt.Errorf("library user_id is required")
	}

	rows := make([]Validator, 0, len(l.Playlists)+len(l.Artists)+len(l.Albums)+len(l.Tracks))
	for _, p := range l.Playlists {
		rows = append(rows, p)
	}
	for _, a := range l.Artists {
		rows = append(rows, a)
	}
	for _, a := range l.Albums {
		rows = append(rows, a)
	}
	for _, t := range l.Tracks {
		rows = append(rows, t)
	}

	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p Playlist) Validate() error {
	if p.SpotifyID == "" {
		return fmt.Errorf("playlist spotify_id is required")
	}
	if p.UserID == "" {
		return fmt.Errorf("playlist %s: user_id is required", p.SpotifyID)
	}
	return nil
}

func (a Artist) Validate() error {
	if a.SpotifyID == "" {
		return fmt.Errorf("artist spotify_id is required")
	}
	return nil
}

func (a Album) Validate() error {
	if a.SpotifyID == "" {
		return fmt.Errorf("album spotify_id is required")
	}
	return nil
}

func (t Track) Validate() error {
	if t.SpotifyID == "" {
		return fmt.Errorf("track spotify_id is required")
	}
	if t.PlaylistID == "" {
		return fmt.Errorf("track %s: playlist_id is required", t.SpotifyID)
	}
	return nil
}

// MediaType selects what a frequency report counts.
type MediaType string

const (
	MediaTracks  MediaType = "tracks"
	MediaArtists MediaType = "artists"
	MediaAlbums  MediaType = "albums"
)

// ParseMediaType parses a media type name. The empty string is [MediaTracks].
func ParseMediaType(s string) (MediaType, error) {
	switch MediaType(strings.ToLower(strings.TrimSpace(s))) {
	case "", MediaTracks:
		return MediaTracks, nil
	case MediaArtists:
		return MediaArtists, nil
	case MediaAlbums:
		return MediaAlbums, nil
	default:
		return "", fmt.Errorf("unknown media type %q (want tracks, artists or albums)", s)
	}
}

// Singular returns the label used for a single item, e.g. "track".
func (m MediaType) Singular() string {
	return strings.TrimSuffix(string(m), "s")
}

// Frequency is one row of a top-N report.
type Frequency struct {
	SpotifyID string `db:"spotify_id" json:"spotify_id"`
	Name      string `db:"name" json:"name"`
	Count     int64  `db:"freq" json:"count"`
}

// ReportRow is one line of the flat playlist export.
type ReportRow struct {
	PlaylistName      string     `db:"playlist_name"`
	TrackName         string     `db:"track_name"`
	ArtistName        string     `db:"artist_name"`
	AlbumName         string     `db:"album_name"`
	AlbumReleaseDate  *time.Time `db:"album_release_date"`
	PlaylistSpotifyID string     `db:"playlist_spotify_id"`
	TrackSpotifyID    string     `db:"track_spotify_id"`
	ArtistSpotifyID   string     `db:"artist_spotify_id"`
	AlbumSpotifyID    string     `db:"album_spotify_id"`
}

// ReportHeader lists the export columns in order.
var ReportHeader = []string{
	"playlist_name",
	"track_name",
	"artist_name",
	"album_name",
	"album_release_date",
	"playlist_spotify_id",
	"track_spotify_id",
	"artist_spotify_id",
	"album_spotify_id",
}

// Record renders the row in [ReportHeader] order. A missing release date is an empty cell.
func (r ReportRow) Record() []string {
	date := ""
	if r.AlbumReleaseDate != nil {
		date = r.AlbumReleaseDate.Format("2006-01-02")
	}
	return []string{
		r.PlaylistName,
		r.TrackName,
		r.ArtistName,
		r.AlbumName,
		date,
		r.PlaylistSpotifyID,
		r.TrackSpotifyID,
		r.ArtistSpotifyID,
		r.AlbumSpotifyID,
	}
}

// StringPtr returns nil for an empty string and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
