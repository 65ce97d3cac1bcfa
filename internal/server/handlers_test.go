package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/repositories"
	"github.com/desertthunder/spotalytics/internal/services"
	"github.com/desertthunder/spotalytics/internal/session"
	"github.com/desertthunder/spotalytics/internal/shared"
	tu "github.com/desertthunder/spotalytics/internal/testing"
	"github.com/jmoiron/sqlx"
)

type testEnv struct {
	srv      *httptest.Server
	client   *http.Client
	api      *tu.FakeSpotify
	accounts *tu.FakeAccounts
	store    *session.MemoryStore
	db       *sqlx.DB
}

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func libraryFixture() []tu.FakePlaylist {
	alpha := tu.FakeArtist{ID: "ar1", Name: "Alpha"}
	beta := tu.FakeArtist{ID: "ar2", Name: "Beta"}
	first := tu.FakeAlbum{ID: "al1", Name: "First", ReleaseDate: "2001-02-03", Precision: "day"}
	second := tu.FakeAlbum{ID: "al2", Name: "Second", ReleaseDate: "2005", Precision: "year"}

	return []tu.FakePlaylist{
		{ID: "p1", Name: "Bravo", OwnerID: "alice", Items: []tu.FakeItem{
			{ID: "t1", Name: "Song A", Artists: []tu.FakeArtist{alpha}, Album: first},
			{ID: "t2", Name: "Song B", Artists: []tu.FakeArtist{beta}, Album: second},
		}},
		{ID: "p2", Name: "Alpha Mix", OwnerID: "alice", Items: []tu.FakeItem{
			{ID: "t1", Name: "Song A", Artists: []tu.FakeArtist{alpha}, Album: first},
		}},
		{ID: "p3", Name: "Followed", OwnerID: "carol"},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	accounts := tu.NewFakeAccounts(t)
	api := tu.NewFakeSpotify(t, "alice", libraryFixture()...)

	cfg := shared.DefaultConfig()
	cfg.Credentials.Spotify = shared.SpotifyConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:8000/callback",
		AuthURL:      accounts.AuthURL(),
		TokenURL:     accounts.TokenURL(),
		APIURL:       api.URL(),
	}
	cfg.Sync.RequestsPerSecond = 0

	auth, err := services.NewAuthenticator(cfg.Credentials.Spotify)
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	logger := log.New(io.Discard)
	store, _ := session.NewMemoryStore(16)
	app := NewApp(Deps{
		Config:   cfg,
		DB:       db,
		Auth:     auth,
		Sessions: session.NewManager(store, cfg.Session, logger),
		Logger:   logger,
	})

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{srv: srv, client: client, api: api, accounts: accounts, store: store, db: db}
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) sessionID(t *testing.T) string {
	t.Helper()
	u, _ := url.Parse(e.srv.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == session.DefaultCookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

// login runs /authorize and /callback and returns the state that was used.
func (e *testEnv) login(t *testing.T, next string) string {
	t.Helper()

	resp := e.get(t, "/authorize?next_url="+url.QueryEscape(next))
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307 from /authorize, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("invalid redirect: %v", err)
	}
	state := loc.Query().Get("state")

	resp = e.get(t, "/callback?code=good&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307 from /callback, got %d", resp.StatusCode)
	}
	return state
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(b)
}

func expectDetail(t *testing.T, resp *http.Response, status int, detail string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("expected status %d, got %d", status, resp.StatusCode)
	}
	if got := decodeDetail(t, resp.Body); got != detail {
		t.Errorf("expected detail %q, got %q", detail, got)
	}
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("index lists endpoints", func(t *testing.T) {
		resp := env.get(t, "/")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if b := body(t, resp); !strings.Contains(b, `href="/sync"`) {
			t.Errorf("expected /sync link, got %s", b)
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		if resp := env.get(t, "/nope"); resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("healthz", func(t *testing.T) {
		resp := env.get(t, "/healthz")
		if resp.StatusCode != http.StatusOK || !strings.Contains(body(t, resp), `"ok"`) {
			t.Errorf("expected healthy response, got %d", resp.StatusCode)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp := env.get(t, "/metrics")
		if b := body(t, resp); !strings.Contains(b, `route="/healthz"`) {
			t.Errorf("expected healthz request to be counted, got:\n%s", b)
		}
	})
}

func TestAuthFlow(t *testing.T) {
	t.Run("authorize redirects with state and scopes", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.get(t, "/authorize?next_url=/report")

		if resp.StatusCode != http.StatusTemporaryRedirect {
			t.Fatalf("expected 307, got %d", resp.StatusCode)
		}
		loc, _ := url.Parse(resp.Header.Get("Location"))
		q := loc.Query()

		if !strings.HasPrefix(loc.String(), env.accounts.AuthURL()) {
			t.Errorf("expected redirect to accounts service, got %s", loc)
		}
		if q.Get("response_type") != "code" || q.Get("client_id") != "client" {
			t.Errorf("unexpected authorize query %v", q)
		}
		if !strings.Contains(q.Get("scope"), "playlist-read-private") || !strings.Contains(q.Get("scope"), "user-library-read") {
			t.Errorf("expected scopes, got %q", q.Get("scope"))
		}
		if !strings.HasSuffix(q.Get("state"), ":/report") {
			t.Errorf("expected state to carry next_url, got %q", q.Get("state"))
		}
	})

	t.Run("authorize drops foreign next_url", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.get(t, "/authorize?next_url="+url.QueryEscape("https://evil.example"))
		loc, _ := url.Parse(resp.Header.Get("Location"))
		if state := loc.Query().Get("state"); !strings.HasSuffix(state, ":") {
			t.Errorf("expected empty next_url in state, got %q", state)
		}
	})

	t.Run("callback redirects to next_url and stores tokens", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.get(t, "/authorize?next_url=/report")
		loc, _ := url.Parse(resp.Header.Get("Location"))
		state := loc.Query().Get("state")

		resp = env.get(t, "/callback?code=good&state="+url.QueryEscape(state))
		if resp.StatusCode != http.StatusTemporaryRedirect || resp.Header.Get("Location") != "/report" {
			t.Fatalf("expected redirect to /report, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
		}

		data, err := env.store.Load(context.Background(), env.sessionID(t))
		if err != nil {
			t.Fatalf("failed to load session: %v", err)
		}
		if data.Tokens.AccessToken != "access-1" || data.Tokens.RefreshToken != "refresh-1" {
			t.Errorf("unexpected tokens %+v", data.Tokens)
		}
		if data.State != "" {
			t.Errorf("expected state to be consumed, got %q", data.State)
		}
		if until := time.Until(data.Tokens.Expiry); until > time.Hour-services.ExpiryBuffer || until < 50*time.Minute {
			t.Errorf("expected expiry an hour minus the buffer away, got %s", until)
		}

		t.Run("cannot be replayed", func(t *testing.T) {
			resp := env.get(t, "/callback?code=good&state="+url.QueryEscape(state))
			expectDetail(t, resp, http.StatusUnauthorized, "State mismatch! Expected  but got "+state)
		})
	})

	t.Run("callback defaults next_url to root", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.get(t, "/authorize")
		loc, _ := url.Parse(resp.Header.Get("Location"))

		resp = env.get(t, "/callback?code=good&state="+url.QueryEscape(loc.Query().Get("state")))
		if resp.Header.Get("Location") != "/" {
			t.Errorf("expected redirect to /, got %q", resp.Header.Get("Location"))
		}
	})

	t.Run("callback failures", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.get(t, "/authorize")
		loc, _ := url.Parse(resp.Header.Get("Location"))
		state := loc.Query().Get("state")

		tc := []struct {
			name   string
			query  string
			detail string
		}{
			{"error wins", "?error=access_denied&code=good&state=" + url.QueryEscape(state), `Failed due to "access_denied"`},
			{"state mismatch", "?code=good&state=wrong", "State mismatch! Expected " + state + " but got wrong"},
			{"no code", "?state=" + url.QueryEscape(state), "Failed to receive code from Spotify; please try again"},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				expectDetail(t, env.get(t, "/callback"+tt.query), http.StatusUnauthorized, tt.detail)
			})
		}

		t.Run("rejected code", func(t *testing.T) {
			resp := env.get(t, "/callback?code="+tu.BadCode+"&state="+url.QueryEscape(state))
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", resp.StatusCode)
			}
		})
	})

	t.Run("getAccessToken", func(t *testing.T) {
		env := newTestEnv(t)

		expectDetail(t, env.get(t, "/getAccessToken"), http.StatusBadRequest, "missing required argument: code is required")

		resp := env.get(t, "/getAccessToken?code=good")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var tok map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if tok["access_token"] != "access-1" || tok["refresh_token"] != "refresh-1" || tok["token_type"] != "Bearer" {
			t.Errorf("unexpected token %v", tok)
		}
		if n, _ := tok["expires_in"].(float64); n < 3500 || n > 3600 {
			t.Errorf("expected expires_in near 3600, got %v", tok["expires_in"])
		}
	})

	t.Run("debug", func(t *testing.T) {
		env := newTestEnv(t)

		var before map[string]any
		json.NewDecoder(env.get(t, "/debug").Body).Decode(&before)
		if before["access_token"] != nil || before["expiration_time"] != nil || before["expired"] != true {
			t.Errorf("expected empty expired debug info, got %v", before)
		}

		env.login(t, "/")

		var after map[string]any
		json.NewDecoder(env.get(t, "/debug").Body).Decode(&after)
		if after["access_token"] != "access-1" || after["refresh_token"] != "refresh-1" || after["expired"] != false {
			t.Errorf("unexpected debug info %v", after)
		}
		exp, err := time.Parse(time.RFC3339, after["expiration_time"].(string))
		if err != nil {
			t.Fatalf("expected RFC3339 expiration, got %v", after["expiration_time"])
		}
		chicago, err := time.LoadLocation("America/Chicago")
		if err != nil {
			t.Skipf("time zone data unavailable: %v", err)
		}
		if want := exp.In(chicago).Format(time.RFC3339); after["expiration_time"] != want {
			t.Errorf("expected expiration rendered in America/Chicago (%s), got %s", want, after["expiration_time"])
		}
	})
}

func TestSyncAndReports(t *testing.T) {
	ctx := context.Background()

	t.Run("sync requires authorization", func(t *testing.T) {
		env := newTestEnv(t)
		expectDetail(t, env.get(t, "/sync"), http.StatusUnauthorized, ReauthorizeHint)
	})

	env := newTestEnv(t)
	env.login(t, "/")
	env.api.Token = "access-1"

	t.Run("sync", func(t *testing.T) {
		resp := env.get(t, "/sync")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body(t, resp))
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("expected text/html, got %s", ct)
		}
		if b := body(t, resp); b != "Successfully synced" {
			t.Errorf("unexpected body %q", b)
		}

		playlists, err := repositories.NewLibraryRepository(env.db).Playlists(ctx, "alice")
		if err != nil {
			t.Fatalf("failed to list playlists: %v", err)
		}
		if len(playlists) != 2 {
			t.Errorf("expected 2 owned playlists, got %+v", playlists)
		}

		data, _ := env.store.Load(ctx, env.sessionID(t))
		if data.UserID != "alice" {
			t.Errorf("expected session to remember alice, got %q", data.UserID)
		}
	})

	t.Run("getTracksFromPlaylistDB", func(t *testing.T) {
		expectDetail(t, env.get(t, "/getTracksFromPlaylistDB"), http.StatusBadRequest, "missing required argument: playlist_id is required")

		var tracks []models.Track
		if err := json.NewDecoder(env.get(t, "/getTracksFromPlaylistDB?playlist_id=p1").Body).Decode(&tracks); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(tracks) != 2 || tracks[0].SpotifyID != "t1" || tracks[1].SpotifyID != "t2" {
			t.Errorf("unexpected tracks %+v", tracks)
		}

		if b := strings.TrimSpace(body(t, env.get(t, "/getTracksFromPlaylistDB?playlist_id=unknown"))); b != "[]" {
			t.Errorf("expected [] for unknown playlist, got %s", b)
		}
	})

	t.Run("getFrequent", func(t *testing.T) {
		var freqs []models.Frequency
		if err := json.NewDecoder(env.get(t, "/getFrequent?top=5").Body).Decode(&freqs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(freqs) != 2 || freqs[0].SpotifyID != "t1" || freqs[0].Count != 2 || freqs[1].SpotifyID != "t2" {
			t.Errorf("unexpected frequencies %+v", freqs)
		}

		resp := env.get(t, "/getFrequent?user=alice&media_type=artists&top=1&format=text")
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("expected text/plain, got %s", ct)
		}
		if b := body(t, resp); !strings.Contains(b, "Top 1 artists for alice") || !strings.Contains(b, "Alpha | ") {
			t.Errorf("unexpected chart:\n%s", b)
		}

		if b := body(t, env.get(t, "/getFrequent?user=alice&media_type=albums&format=csv")); b != "name,count\nFirst,2\nSecond,1\n" {
			t.Errorf("unexpected CSV %q", b)
		}
	})

	t.Run("getFrequent creates unknown users", func(t *testing.T) {
		if b := strings.TrimSpace(body(t, env.get(t, "/getFrequent?user=bob"))); b != "[]" {
			t.Errorf("expected [] for new user, got %s", b)
		}
		exists, _ := repositories.NewUserRepository(env.db).Exists(ctx, "bob")
		if !exists {
			t.Error("expected bob to be created")
		}
	})

	t.Run("getFrequent rejects bad arguments", func(t *testing.T) {
		for _, q := range []string{"media_type=genres", "top=0", "top=ten", "format=xml"} {
			if resp := env.get(t, "/getFrequent?user=alice&"+q); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", q, resp.StatusCode)
			}
		}
	})

	t.Run("report", func(t *testing.T) {
		resp := env.get(t, "/report")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if cd := resp.Header.Get("Content-Disposition"); cd != "attachment; filename=alice_playlists.csv" {
			t.Errorf("unexpected Content-Disposition %q", cd)
		}

		records, err := csv.NewReader(resp.Body).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("expected header and 3 rows, got %d", len(records))
		}
		if records[1][0] != "Alpha Mix" || records[2][0] != "Bravo" || records[1][4] != "2001-02-03" {
			t.Errorf("unexpected rows %v", records[1:])
		}
	})

	t.Run("report for unknown user", func(t *testing.T) {
		expectDetail(t, env.get(t, "/report?user=zed"), http.StatusNotFound, `User "zed" not found; nothing to generate`)
	})
}

func TestTokenRefresh(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, env *testEnv) string {
		t.Helper()
		id := shared.GenerateID()
		data := session.Data{Tokens: services.Tokens{
			AccessToken:  "stale",
			RefreshToken: "keep-me",
			Expiry:       time.Now().Add(-time.Minute),
		}}
		if err := env.store.Save(ctx, id, data, time.Hour); err != nil {
			t.Fatalf("failed to seed session: %v", err)
		}
		u, _ := url.Parse(env.srv.URL)
		env.client.Jar.SetCookies(u, []*http.Cookie{{Name: session.DefaultCookieName, Value: id, Path: "/"}})
		return id
	}

	t.Run("expired token is refreshed and persisted", func(t *testing.T) {
		env := newTestEnv(t)
		env.api.Token = "access-1"
		id := seed(t, env)

		resp := env.get(t, "/getFrequent")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body(t, resp))
		}

		data, err := env.store.Load(ctx, id)
		if err != nil {
			t.Fatalf("failed to load session: %v", err)
		}
		if data.Tokens.AccessToken != "access-1" || data.Tokens.RefreshToken != "keep-me" {
			t.Errorf("unexpected tokens after refresh %+v", data.Tokens)
		}
		if data.UserID != "alice" {
			t.Errorf("expected resolved user on session, got %q", data.UserID)
		}

		grants := env.accounts.Grants()
		if len(grants) != 1 || grants[0].Get("grant_type") != "refresh_token" || grants[0].Get("refresh_token") != "keep-me" {
			t.Errorf("unexpected grants %v", grants)
		}
	})

	t.Run("failed refresh asks to authorize again", func(t *testing.T) {
		env := newTestEnv(t)
		env.accounts.FailRefresh = true
		seed(t, env)

		expectDetail(t, env.get(t, "/sync"), http.StatusUnauthorized, ReauthorizeHint)
	})
}

type brokenResponse struct {
	header http.Header
	status int
}

func (b *brokenResponse) Header() http.Header {
	if b.header == nil {
		b.header = http.Header{}
	}
	return b.header
}

func (b *brokenResponse) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func (b *brokenResponse) WriteHeader(status int) { b.status = status }

func TestWriteFailures(t *testing.T) {
	var buf strings.Builder
	app := &App{logger: log.New(&buf)}
	r := httptest.NewRequest(http.MethodGet, "/getTracksFromPlaylistDB?playlist_id=p1", nil)

	w := &brokenResponse{}
	app.writeJSON(w, r, []models.Track{{SpotifyID: "t1", PlaylistID: "p1", Name: "Song A"}})

	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type, got %q", w.Header().Get("Content-Type"))
	}
	out := buf.String()
	if !strings.Contains(out, "failed to write response") || !strings.Contains(out, "connection reset") {
		t.Errorf("expected failed write to be logged, got %q", out)
	}
	if !strings.Contains(out, "/getTracksFromPlaylistDB") {
		t.Errorf("expected path in log, got %q", out)
	}
}
