package tasks

import (
	"time"

	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/zmb3/spotify/v2"
)

// OwnedPlaylists keeps the playlists owned by userID, first occurrence of each ID only.
func OwnedPlaylists(all []spotify.SimplePlaylist, userID string) []spotify.SimplePlaylist {
	seen := make(map[spotify.ID]struct{}, len(all))
	owned := make([]spotify.SimplePlaylist, 0, len(all))

	for _, p := range all {
		if p.ID == "" || p.Owner.ID != userID {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		owned = append(owned, p)
	}
	return owned
}

var releaseLayouts = map[string]string{
	"day":   "2006-01-02",
	"month": "2006-01",
}

// ParseReleaseDate parses an album release date by its precision ("day", "month", anything else
// is a year). An empty or malformed date yields nil.
func ParseReleaseDate(date, precision string) *time.Time {
	if date == "" {
		return nil
	}

	layout, ok := releaseLayouts[precision]
	if !ok {
		layout = "2006"
	}

	t, err := time.Parse(layout, date)
	if err != nil {
		return nil
	}
	return &t
}

// Flatten turns playlists and their items into the rows of a [models.Library].
//
// items[i] belongs to playlists[i]. Local files, episodes and tracks without an ID are skipped
// and counted. The first artist of a track is its artist, and an album takes the artist of the
// first track that references it. Artists and albums are de-duplicated by ID, first occurrence
// winning.
func Flatten(userID string, playlists []spotify.SimplePlaylist, items [][]spotify.PlaylistItem) (models.Library, int) {
	lib := models.Library{
		UserID:    userID,
		Playlists: make([]models.Playlist, 0, len(playlists)),
		Artists:   []models.Artist{},
		Albums:    []models.Album{},
		Tracks:    []models.Track{},
	}

	seenArtists := map[spotify.ID]struct{}{}
	seenAlbums := map[spotify.ID]struct{}{}
	skipped := 0

	for i, p := range playlists {
		lib.Playlists = append(lib.Playlists, models.Playlist{
			SpotifyID: string(p.ID),
			UserID:    userID,
			Name:      p.Name,
		})

		if i >= len(items) {
			continue
		}

		for _, item := range items[i] {
			track := item.Track.Track
			if item.IsLocal || track == nil || track.ID == "" {
				skipped++
				continue
			}

			row := models.Track{
				SpotifyID:  string(track.ID),
				PlaylistID: string(p.ID),
				Name:       track.Name,
			}

			var artistID *string
			if len(track.Artists) > 0 && track.Artists[0].ID != "" {
				artist := track.Artists[0]
				artistID = models.StringPtr(string(artist.ID))
				if _, ok := seenArtists[artist.ID]; !ok {
					seenArtists[artist.ID] = struct{}{}
					lib.Artists = append(lib.Artists, models.Artist{SpotifyID: string(artist.ID), Name: artist.Name})
				}
			}
			row.ArtistID = artistID

			if album := track.Album; album.ID != "" {
				row.AlbumID = models.StringPtr(string(album.ID))
				if _, ok := seenAlbums[album.ID]; !ok {
					seenAlbums[album.ID] = struct{}{}
					lib.Albums = append(lib.Albums, models.Album{
						SpotifyID:   string(album.ID),
						ArtistID:    artistID,
						Name:        album.Name,
						ReleaseDate: ParseReleaseDate(album.ReleaseDate, album.ReleaseDatePrecision),
					})
				}
			}

			lib.Tracks = append(lib.Tracks, row)
		}
	}

	return lib, skipped
}
