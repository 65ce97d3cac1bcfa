// package services wraps the Spotify accounts service and Web API
package services

import (
	"context"

	"github.com/zmb3/spotify/v2"
)

// Catalog is the read-only part of the Spotify Web API a library sync needs.
type Catalog interface {
	// CurrentUserID returns the ID of the user the access token belongs to.
	CurrentUserID(ctx context.Context) (string, error)

	// UserPlaylists returns every playlist visible on the user's profile, following pagination.
	UserPlaylists(ctx context.Context, userID string) ([]spotify.SimplePlaylist, error)

	// PlaylistItems returns every item of a playlist, following pagination.
	PlaylistItems(ctx context.Context, playlistID spotify.ID) ([]spotify.PlaylistItem, error)
}
