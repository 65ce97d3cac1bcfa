package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchUser Phase = iota
	FetchPlaylists
	FetchTracks
	StoreLibrary
	Done
)

func (p Phase) String() string {
	switch p {
	case FetchUser:
		return "fetch_user"
	case FetchPlaylists:
		return "fetch_playlists"
	case FetchTracks:
		return "fetch_tracks"
	case StoreLibrary:
		return "store_library"
	case Done:
		return "done"
	default:
		return ""
	}
}

func fetchUserUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: FetchUser, Step: 1, Total: 1, Message: "Resolving current Spotify user..."}
}

func fetchPlaylistsUpdate(userID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching playlists of %s...", userID),
	}
}

func fetchTracksUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetched tracks of %q", name),
	}
}

func storeLibraryUpdate(playlists, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StoreLibrary,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Storing %d playlists with %d tracks...", playlists, tracks),
	}
}

func doneUpdate(result *SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Synced %d playlists (%d tracks) for %s", result.Playlists, result.Tracks, result.UserID),
		Data:    result,
	}
}
