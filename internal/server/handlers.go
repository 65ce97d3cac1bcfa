package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotalytics/internal/formatter"
	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/repositories"
	"github.com/desertthunder/spotalytics/internal/services"
	"github.com/desertthunder/spotalytics/internal/session"
	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/desertthunder/spotalytics/internal/tasks"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"
)

// Deps are the collaborators of an [App].
type Deps struct {
	Config   *shared.Config
	DB       *sqlx.DB
	Auth     *services.Authenticator
	Sessions *session.Manager
	Logger   *log.Logger
	Metrics  *Metrics      // created when nil
	Limiter  *rate.Limiter // created from Config.Sync when nil
}

// App serves the analytics HTTP API.
type App struct {
	auth     *services.Authenticator
	tokens   *services.TokenManager
	sessions *session.Manager
	db       *sqlx.DB
	users    *repositories.UserRepository
	library  *repositories.LibraryRepository
	reports  *repositories.ReportRepository
	metrics  *Metrics
	logger   *log.Logger
	loc      *time.Location
	catalog  func(ctx context.Context, accessToken string) services.Catalog
	workers  int
	now      func() time.Time
}

// NewApp wires an [App] from d.
func NewApp(d Deps) *App {
	cfg := d.Config
	if cfg == nil {
		cfg = shared.DefaultConfig()
	}

	loc, err := cfg.Server.Location()
	if err != nil {
		loc = time.UTC
	}

	metrics := d.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	limiter := d.Limiter
	if limiter == nil {
		limiter = services.NewLimiter(cfg.Sync.RequestsPerSecond)
	}

	opts := []services.SpotifyOption{services.WithLimiter(limiter), services.WithPageSize(cfg.Sync.PageSize)}
	if u := cfg.Credentials.Spotify.APIURL; u != "" {
		opts = append(opts, services.WithAPIURL(u))
	}

	return &App{
		auth:     d.Auth,
		tokens:   services.NewTokenManager(d.Auth),
		sessions: d.Sessions,
		db:       d.DB,
		users:    repositories.NewUserRepository(d.DB),
		library:  repositories.NewLibraryRepository(d.DB),
		reports:  repositories.NewReportRepository(d.DB),
		metrics:  metrics,
		logger:   d.Logger,
		loc:      loc,
		catalog: func(ctx context.Context, accessToken string) services.Catalog {
			return services.NewSpotifyService(services.StaticClient(ctx, accessToken), opts...)
		},
		workers: cfg.Sync.Workers,
		now:     time.Now,
	}
}

// Routes registers every endpoint on r.
func (a *App) Routes(r Router) {
	r.Handle(http.MethodGet, "/{$}", http.HandlerFunc(a.index))
	r.Handle(http.MethodGet, "/healthz", http.HandlerFunc(a.healthz))
	r.Handle(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Handle(http.MethodGet, "/authorize", http.HandlerFunc(a.authorize))
	r.Handle(http.MethodGet, "/callback", http.HandlerFunc(a.callback))
	r.Handle(http.MethodGet, "/getAccessToken", http.HandlerFunc(a.getAccessToken))
	r.Handle(http.MethodGet, "/debug", http.HandlerFunc(a.debug))

	r.Handle(http.MethodGet, "/sync", http.HandlerFunc(a.sync))
	r.Handle(http.MethodGet, "/getTracksFromPlaylistDB", http.HandlerFunc(a.playlistTracks))
	r.Handle(http.MethodGet, "/getFrequent", http.HandlerFunc(a.frequent))
	r.Handle(http.MethodGet, "/report", http.HandlerFunc(a.report))
}

// Handler builds the router with the full middleware stack and every route.
func (a *App) Handler() http.Handler {
	r := NewBasicRouter()
	r.Use(Recovery(a.logger), Logging(a.logger), a.metrics.Middleware, a.sessions.Middleware)
	a.Routes(r)
	return r
}

var endpoints = []struct{ Path, Description string }{
	{"/authorize", "Log in with Spotify"},
	{"/debug", "Inspect the tokens of this session"},
	{"/sync", "Mirror your playlists into the database"},
	{"/getFrequent?media_type=tracks&top=10&format=text", "Most frequent tracks, artists or albums"},
	{"/report", "Download a CSV export of your playlists"},
	{"/getTracksFromPlaylistDB?playlist_id=", "Stored tracks of a playlist"},
	{"/healthz", "Health check"},
	{"/metrics", "Prometheus metrics"},
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Spotalytics</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; margin: 40px; }
        h1 { color: #1DB954; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
    </style>
</head>
<body>
    <h1>Spotalytics</h1>
    <p>Personal Spotify library analytics.</p>
    <h2>Endpoints</h2>
    {{range .}}<div class="endpoint"><a href="{{.Path}}">{{.Path}}</a> - {{.Description}}</div>
    {{end}}
</body>
</html>
`))

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, endpoints); err != nil {
		a.logger.Error("failed to render index", "error", err)
	}
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := a.db.PingContext(r.Context()); err != nil {
		a.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		a.write(w, r, []byte(`{"status":"unavailable"}`))
		return
	}
	a.write(w, r, []byte(`{"status":"ok"}`))
}

// accessToken returns a usable access token for the request's session, persisting refreshed tokens.
func (a *App) accessToken(w http.ResponseWriter, r *http.Request) (string, error) {
	s := session.FromContext(r.Context())
	if s == nil {
		return "", shared.ErrNotAuthenticated
	}

	tokens, changed, err := a.tokens.AccessToken(r.Context(), s.Tokens)
	if err != nil {
		return "", err
	}
	if changed {
		s.Tokens = tokens
		if err := a.sessions.Save(r.Context(), w, s); err != nil {
			return "", err
		}
		a.logger.Debug("refreshed access token", "session", s.ID, "expires", tokens.Expiry)
	}
	return tokens.AccessToken, nil
}

func (a *App) requestCatalog(w http.ResponseWriter, r *http.Request) (services.Catalog, error) {
	token, err := a.accessToken(w, r)
	if err != nil {
		return nil, err
	}
	return a.catalog(r.Context(), token), nil
}

// resolveUser returns the user query parameter, or the session's Spotify user, looked up through
// /me and remembered on the session the first time.
func (a *App) resolveUser(w http.ResponseWriter, r *http.Request) (string, error) {
	if user := strings.TrimSpace(r.URL.Query().Get("user")); user != "" {
		return user, nil
	}

	s := session.FromContext(r.Context())
	if s != nil && s.UserID != "" {
		return s.UserID, nil
	}

	catalog, err := a.requestCatalog(w, r)
	if err != nil {
		return "", err
	}
	user, err := catalog.CurrentUserID(r.Context())
	if err != nil {
		return "", err
	}

	if s != nil {
		s.UserID = user
		if err := a.sessions.Save(r.Context(), w, s); err != nil {
			return "", err
		}
	}
	return user, nil
}

func (a *App) sync(w http.ResponseWriter, r *http.Request) {
	catalog, err := a.requestCatalog(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	start := a.now()
	engine := tasks.NewSyncEngine(catalog, a.library, a.workers, a.logger)
	result, err := engine.Run(r.Context(), strings.TrimSpace(r.URL.Query().Get("user")), nil)

	tracks := 0
	if result != nil {
		tracks = result.Tracks
	}
	a.metrics.RecordSync(err, a.now().Sub(start), tracks)

	if err != nil {
		a.fail(w, r, err)
		return
	}

	if s := session.FromContext(r.Context()); s != nil && s.UserID == "" && r.URL.Query().Get("user") == "" {
		s.UserID = result.UserID
		if err := a.sessions.Save(r.Context(), w, s); err != nil {
			a.logger.Warn("failed to remember user on session", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	a.write(w, r, []byte("Successfully synced"))
}

func (a *App) playlistTracks(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("playlist_id"))
	if id == "" {
		a.fail(w, r, fmt.Errorf("%w: playlist_id is required", shared.ErrMissingArgument))
		return
	}

	tracks, err := a.library.TracksForPlaylist(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, r, tracks)
}

type frequencyQuery struct {
	media  models.MediaType
	top    int
	format string
}

func parseFrequencyQuery(r *http.Request) (frequencyQuery, error) {
	q := r.URL.Query()
	fq := frequencyQuery{top: 10, format: "json"}

	media, err := models.ParseMediaType(q.Get("media_type"))
	if err != nil {
		return fq, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	fq.media = media

	if raw := strings.TrimSpace(q.Get("top")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fq, fmt.Errorf("%w: top must be a positive integer, got %q", shared.ErrInvalidArgument, raw)
		}
		fq.top = n
	}

	switch f := strings.ToLower(strings.TrimSpace(q.Get("format"))); f {
	case "", "json":
	case "text", "csv":
		fq.format = f
	default:
		return fq, fmt.Errorf("%w: unknown format %q (want json, text or csv)", shared.ErrInvalidArgument, f)
	}
	return fq, nil
}

func (a *App) frequent(w http.ResponseWriter, r *http.Request) {
	fq, err := parseFrequencyQuery(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	user, err := a.resolveUser(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.users.Ensure(r.Context(), user); err != nil {
		a.fail(w, r, err)
		return
	}

	freqs, err := a.reports.TopN(r.Context(), user, fq.media, fq.top)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	switch fq.format {
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		a.write(w, r, []byte(formatter.BarChart(formatter.ChartTitle(user, fq.media, fq.top), freqs, formatter.DefaultBarWidth)))
	case "csv":
		data, err := formatter.FrequencyCSV(freqs)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		a.write(w, r, data)
	default:
		data, err := formatter.FrequencyJSON(freqs)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		a.write(w, r, data)
	}
}

func (a *App) report(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	exists, err := a.users.Exists(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !exists {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf(`User "%s" not found; nothing to generate`, user))
		return
	}

	rows, err := a.reports.ExportRows(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	data, err := formatter.ExportToCSV(rows)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+formatter.ExportFilename(user))
	a.write(w, r, data)
}

func (a *App) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := formatter.ToJSON(v)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	a.write(w, r, data)
}

// write sends a response body. The status is already committed, so a failed write is only logged.
func (a *App) write(w http.ResponseWriter, r *http.Request, data []byte) {
	if _, err := w.Write(data); err != nil {
		a.logger.Warn("failed to write response", "path", r.URL.Path, "error", err)
	}
}

// fail logs err and writes it as a detail response.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		a.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeDetail(w, status, DetailFor(err))
}
