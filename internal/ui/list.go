package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/spotalytics/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] with its stored track count to implement [list.Item].
type playlistItem struct {
	playlist models.Playlist
	tracks   int
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	return fmt.Sprintf("%d tracks • %s", i.tracks, i.playlist.SpotifyID)
}

// trackItem wraps [models.Track] with its artist name to implement [list.Item].
type trackItem struct {
	track  models.Track
	artist string
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string       { return i.track.Name }
func (i trackItem) Description() string {
	if i.artist == "" {
		return i.track.SpotifyID
	}
	return fmt.Sprintf("%s • %s", i.artist, i.track.SpotifyID)
}
