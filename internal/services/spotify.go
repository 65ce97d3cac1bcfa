// Spotify Web API implementation of [Catalog]
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"
)

// DefaultPageSize is the largest page Spotify serves for playlists and playlist items.
const DefaultPageSize = 50

// SpotifyService implements [Catalog] on top of [spotify.Client].
//
// Every request, including each page of a paginated listing, waits on the shared limiter.
type SpotifyService struct {
	client   *spotify.Client
	limiter  *rate.Limiter
	pageSize int
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*spotifyOptions)

type spotifyOptions struct {
	baseURL  string
	limiter  *rate.Limiter
	pageSize int
}

// WithAPIURL points the client at another Web API root, e.g. a test server.
func WithAPIURL(u string) SpotifyOption {
	return func(o *spotifyOptions) { o.baseURL = u }
}

// WithLimiter paces requests with l. Without it requests are not paced.
func WithLimiter(l *rate.Limiter) SpotifyOption {
	return func(o *spotifyOptions) { o.limiter = l }
}

// WithPageSize sets the page size used for paginated listings (1-50).
func WithPageSize(n int) SpotifyOption {
	return func(o *spotifyOptions) { o.pageSize = n }
}

// NewSpotifyService creates a Web API client that authenticates through httpClient.
//
// httpClient is expected to attach the bearer token, see [Authenticator.Client].
func NewSpotifyService(httpClient *http.Client, opts ...SpotifyOption) *SpotifyService {
	o := spotifyOptions{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pageSize < 1 || o.pageSize > DefaultPageSize {
		o.pageSize = DefaultPageSize
	}
	if o.limiter == nil {
		o.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	var clientOpts []spotify.ClientOption
	if o.baseURL != "" {
		base := o.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		clientOpts = append(clientOpts, spotify.WithBaseURL(base))
	}

	return &SpotifyService{
		client:   spotify.New(httpClient, clientOpts...),
		limiter:  o.limiter,
		pageSize: o.pageSize,
	}
}

// NewLimiter returns a token bucket allowing rps requests per second. rps <= 0 disables pacing.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func (s *SpotifyService) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// CurrentUserID returns the ID of the user the access token belongs to.
func (s *SpotifyService) CurrentUserID(ctx context.Context) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return "", wrapAPIError("get current user", shared.ErrUserNotFound, err)
	}
	return user.ID, nil
}

// UserPlaylists returns every playlist on the user's profile, following "next" links until exhausted.
//
// Empty entries (Spotify occasionally returns null items) are dropped.
func (s *SpotifyService) UserPlaylists(ctx context.Context, userID string) ([]spotify.SimplePlaylist, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	page, err := s.client.GetPlaylistsForUser(ctx, userID, spotify.Limit(s.pageSize))
	if err != nil {
		return nil, wrapAPIError("list playlists for "+userID, shared.ErrUserNotFound, err)
	}

	var playlists []spotify.SimplePlaylist
	for {
		for _, p := range page.Playlists {
			if p.ID == "" {
				continue
			}
			playlists = append(playlists, p)
		}

		if page.Next == "" {
			break
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		err := s.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, wrapAPIError("list playlists for "+userID, shared.ErrUserNotFound, err)
		}
	}

	return playlists, nil
}

// PlaylistItems returns every item of a playlist, following "next" links until exhausted.
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID spotify.ID) ([]spotify.PlaylistItem, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	page, err := s.client.GetPlaylistItems(ctx, playlistID, spotify.Limit(s.pageSize))
	if err != nil {
		return nil, wrapAPIError("list items of playlist "+string(playlistID), shared.ErrPlaylistNotFound, err)
	}

	var items []spotify.PlaylistItem
	for {
		items = append(items, page.Items...)

		if page.Next == "" {
			break
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		err := s.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, wrapAPIError("list items of playlist "+string(playlistID), shared.ErrPlaylistNotFound, err)
		}
	}

	return items, nil
}

// wrapAPIError classifies a Web API failure: 401 is [shared.ErrNotAuthenticated], 404 is notFound,
// anything else is [shared.ErrAPIRequest].
func wrapAPIError(op string, notFound, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			return fmt.Errorf("failed to %s: %w: %s", op, shared.ErrNotAuthenticated, apiErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("failed to %s: %w: %s", op, notFound, apiErr.Message)
		}
		return fmt.Errorf("failed to %s: %w: status %d: %s", op, shared.ErrAPIRequest, apiErr.Status, apiErr.Message)
	}
	return fmt.Errorf("failed to %s: %w: %v", op, shared.ErrAPIRequest, err)
}
