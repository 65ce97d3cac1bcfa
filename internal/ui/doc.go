// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI browses the library mirrored by the last sync and can start a new one:
//  1. [PlaylistListView] : Browse the stored playlists of a user
//  2. [TrackListView] : List the track rows of a playlist
//  3. [ConfirmView] : Confirm a re-sync from Spotify
//  4. [SyncView] : Monitor real-time progress updates
//  5. [ResultView] : Display the counts of the finished sync
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the SyncEngine, providing non-blocking status reporting during syncs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, s, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
