package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeArtist is an artist as embedded in a track payload.
type FakeArtist struct {
	ID   string
	Name string
}

// FakeAlbum is an album as embedded in a track payload.
type FakeAlbum struct {
	ID          string
	Name        string
	ReleaseDate string
	Precision   string
}

// FakeItem is one entry of a playlist. Episode and IsLocal items are served the way Spotify does.
type FakeItem struct {
	ID      string
	Name    string
	Artists []FakeArtist
	Album   FakeAlbum
	IsLocal bool
	Episode bool
}

// FakePlaylist is a playlist served by [FakeSpotify].
type FakePlaylist struct {
	ID      string
	Name    string
	OwnerID string
	Items   []FakeItem
}

// FakeSpotify is an in-process stand-in for the Spotify Web API.
//
// It serves /v1/me, /v1/users/{id}/playlists and /v1/playlists/{id}/tracks with offset pagination.
type FakeSpotify struct {
	Server *httptest.Server

	UserID    string
	Token     string // required bearer token; empty accepts any
	Playlists []FakePlaylist

	// NullPlaylist prepends a null entry to the first playlist page.
	NullPlaylist bool
	// FailPlaylist makes item listing of that playlist answer 500.
	FailPlaylist string

	mu       sync.Mutex
	requests map[string]int
}

// NewFakeSpotify starts a fake Web API server that is closed when the test ends.
func NewFakeSpotify(t *testing.T, userID string, playlists ...FakePlaylist) *FakeSpotify {
	t.Helper()
	f := &FakeSpotify{UserID: userID, Playlists: playlists, requests: map[string]int{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the API root to hand to the client, with a trailing slash.
func (f *FakeSpotify) URL() string {
	return f.Server.URL + "/v1/"
}

// Requests returns how many times path was requested.
func (f *FakeSpotify) Requests(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *FakeSpotify) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests[r.URL.Path]++
	f.mu.Unlock()

	if f.Token != "" && r.Header.Get("Authorization") != "Bearer "+f.Token {
		writeAPIError(w, http.StatusUnauthorized, "Invalid access token")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	parts := strings.Split(path, "/")

	switch {
	case path == "me":
		writeJSON(w, map[string]any{"id": f.UserID, "display_name": f.UserID, "type": "user"})
	case len(parts) == 3 && parts[0] == "users" && parts[2] == "playlists":
		f.servePlaylists(w, r)
	case len(parts) == 3 && parts[0] == "playlists" && (parts[2] == "tracks" || parts[2] == "items"):
		f.serveItems(w, r, parts[1])
	default:
		writeAPIError(w, http.StatusNotFound, "Service not found")
	}
}

func (f *FakeSpotify) servePlaylists(w http.ResponseWriter, r *http.Request) {
	var all []any
	if f.NullPlaylist {
		all = append(all, nil)
	}
	for _, p := range f.Playlists {
		all = append(all, map[string]any{
			"id":     p.ID,
			"name":   p.Name,
			"type":   "playlist",
			"owner":  map[string]any{"id": p.OwnerID, "display_name": p.OwnerID},
			"tracks": map[string]any{"total": len(p.Items)},
		})
	}
	writeJSON(w, page(r, all))
}

func (f *FakeSpotify) serveItems(w http.ResponseWriter, r *http.Request, id string) {
	if id == f.FailPlaylist {
		writeAPIError(w, http.StatusInternalServerError, "boom")
		return
	}

	for _, p := range f.Playlists {
		if p.ID != id {
			continue
		}
		items := make([]any, 0, len(p.Items))
		for _, it := range p.Items {
			items = append(items, it.payload())
		}
		writeJSON(w, page(r, items))
		return
	}
	writeAPIError(w, http.StatusNotFound, "Not found.")
}

func (it FakeItem) payload() map[string]any {
	if it.Episode {
		return map[string]any{
			"is_local": false,
			"track":    map[string]any{"type": "episode", "id": it.ID, "name": it.Name},
		}
	}

	artists := make([]any, 0, len(it.Artists))
	for _, a := range it.Artists {
		artists = append(artists, map[string]any{"id": nullable(a.ID), "name": a.Name, "type": "artist"})
	}

	album := map[string]any{
		"id":                     nullable(it.Album.ID),
		"name":                   it.Album.Name,
		"release_date":           it.Album.ReleaseDate,
		"release_date_precision": it.Album.Precision,
	}

	return map[string]any{
		"is_local": it.IsLocal,
		"track": map[string]any{
			"type":    "track",
			"id":      nullable(it.ID),
			"name":    it.Name,
			"artists": artists,
			"album":   album,
		},
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// page slices all by the request's offset and limit and links the next page.
func page(r *http.Request, all []any) map[string]any {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+limit, len(all))

	var next any
	if end < len(all) {
		u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}
		nq := url.Values{}
		for k, v := range q {
			nq[k] = v
		}
		nq.Set("offset", strconv.Itoa(end))
		nq.Set("limit", strconv.Itoa(limit))
		u.RawQuery = nq.Encode()
		next = u.String()
	}

	items := all[offset:end]
	if items == nil {
		items = []any{}
	}

	return map[string]any{
		"href":   r.URL.String(),
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  len(all),
		"next":   next,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"status": status, "message": message},
	})
}

// FakeAccounts is an in-process stand-in for the Spotify accounts token endpoint.
//
// Authorization codes other than BadCode are accepted. Refresh grants succeed unless FailRefresh is set.
type FakeAccounts struct {
	Server *httptest.Server

	ExpiresIn     int
	RotateRefresh bool
	FailRefresh   bool

	mu     sync.Mutex
	issued int
	grants []url.Values
}

// BadCode is the authorization code [FakeAccounts] rejects.
const BadCode = "bad-code"

// NewFakeAccounts starts a fake token endpoint that is closed when the test ends.
func NewFakeAccounts(t *testing.T) *FakeAccounts {
	t.Helper()
	f := &FakeAccounts{ExpiresIn: 3600}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", f.token)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// TokenURL is the token endpoint URL.
func (f *FakeAccounts) TokenURL() string {
	return f.Server.URL + "/api/token"
}

// AuthURL is the authorize endpoint URL. Nothing is served there.
func (f *FakeAccounts) AuthURL() string {
	return f.Server.URL + "/authorize"
}

// Grants returns the form of every token request received.
func (f *FakeAccounts) Grants() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.grants...)
}

func (f *FakeAccounts) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, _, ok := r.BasicAuth(); !ok {
		tokenError(w, "invalid_client")
		return
	}

	f.mu.Lock()
	f.grants = append(f.grants, r.PostForm)
	f.issued++
	n := f.issued
	f.mu.Unlock()

	resp := map[string]any{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
		"expires_in":   f.ExpiresIn,
		"scope":        "playlist-read-private",
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") == BadCode {
			tokenError(w, "invalid_grant")
			return
		}
		resp["refresh_token"] = fmt.Sprintf("refresh-%d", n)
	case "refresh_token":
		if f.FailRefresh || r.PostForm.Get("refresh_token") == "" {
			tokenError(w, "invalid_grant")
			return
		}
		if f.RotateRefresh {
			resp["refresh_token"] = fmt.Sprintf("refresh-%d", n)
		}
	default:
		tokenError(w, "unsupported_grant_type")
		return
	}

	writeJSON(w, resp)
}

func tokenError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
