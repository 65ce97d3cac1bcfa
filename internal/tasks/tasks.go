package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/repositories"
	"github.com/desertthunder/spotalytics/internal/services"
	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent playlist item fetches when no worker count is configured.
const DefaultWorkers = 4

// LibraryStore persists a flattened library. Implemented by [repositories.LibraryRepository].
type LibraryStore interface {
	Replace(ctx context.Context, lib models.Library) (repositories.ReplaceCounts, error)
}

// SyncResult summarizes a completed sync.
type SyncResult struct {
	UserID    string
	Playlists int // Owned playlists stored
	Tracks    int // Track rows stored
	Artists   int // Distinct artists seen
	Albums    int // Distinct albums seen
	Skipped   int // Local files, episodes and items without a track ID
	Deleted   int64
	Inserted  repositories.ReplaceCounts
	Duration  time.Duration
}

// SyncEngine mirrors a user's Spotify playlists into the library store.
type SyncEngine struct {
	catalog services.Catalog
	store   LibraryStore
	workers int
	logger  *log.Logger
}

// NewSyncEngine creates a [SyncEngine]. workers below one falls back to [DefaultWorkers].
func NewSyncEngine(catalog services.Catalog, store LibraryStore, workers int, logger *log.Logger) *SyncEngine {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &SyncEngine{catalog: catalog, store: store, workers: workers, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run fetches the playlists owned by userID, every item of each, and replaces the user's stored
// library with the result. An empty userID syncs the user the access token belongs to.
//
// Playlists other users own (followed ones) are ignored. Nothing is written unless every fetch
// succeeds.
func (e *SyncEngine) Run(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*SyncResult, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: Spotify catalog not initialized", shared.ErrServiceUnavailable)
	}

	start := time.Now()

	if userID == "" {
		sendProgress(progress, fetchUserUpdate())
		id, err := e.catalog.CurrentUserID(ctx)
		if err != nil {
			return nil, err
		}
		userID = id
	}

	sendProgress(progress, fetchPlaylistsUpdate(userID))
	all, err := e.catalog.UserPlaylists(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned := OwnedPlaylists(all, userID)
	e.logger.Debug("fetched playlists", "user", userID, "total", len(all), "owned", len(owned))

	items, err := e.fetchItems(ctx, owned, progress)
	if err != nil {
		return nil, err
	}

	lib, skipped := Flatten(userID, owned, items)
	if err := lib.Validate(); err != nil {
		return nil, err
	}

	sendProgress(progress, storeLibraryUpdate(len(lib.Playlists), len(lib.Tracks)))
	counts, err := e.store.Replace(ctx, lib)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		UserID:    userID,
		Playlists: len(lib.Playlists),
		Tracks:    len(lib.Tracks),
		Artists:   len(lib.Artists),
		Albums:    len(lib.Albums),
		Skipped:   skipped,
		Deleted:   counts.DeletedPlaylists,
		Inserted:  counts,
		Duration:  time.Since(start),
	}

	e.logger.Info("synced library",
		"user", userID,
		"playlists", result.Playlists,
		"tracks", result.Tracks,
		"new_artists", counts.Artists,
		"new_albums", counts.Albums,
		"skipped", skipped,
		"duration", result.Duration.Round(time.Millisecond),
	)
	sendProgress(progress, doneUpdate(result))
	return result, nil
}

// fetchItems loads the items of each playlist with at most e.workers requests in flight.
// The result is indexed like playlists. The first error cancels the remaining fetches.
func (e *SyncEngine) fetchItems(ctx context.Context, playlists []spotify.SimplePlaylist, progress chan<- ProgressUpdate) ([][]spotify.PlaylistItem, error) {
	items := make([][]spotify.PlaylistItem, len(playlists))
	total := len(playlists)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, p := range playlists {
		g.Go(func() error {
			got, err := e.catalog.PlaylistItems(gctx, p.ID)
			if err != nil {
				return fmt.Errorf("playlist %s: %w", p.ID, err)
			}
			items[i] = got
			sendProgress(progress, fetchTracksUpdate(int(done.Add(1)), total, p.Name))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}
