package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotalytics/internal/repositories"
	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DefaultCookieName is used when the configuration leaves the cookie name empty.
const DefaultCookieName = "spotalytics_session"

// Manager loads sessions from a cookie into the request context and persists them.
type Manager struct {
	store  Store
	cookie string
	ttl    time.Duration
	secure bool
	logger *log.Logger
}

// NewManager creates a [Manager] over store using the cookie settings in cfg.
func NewManager(store Store, cfg shared.SessionConfig, logger *log.Logger) *Manager {
	name := cfg.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	return &Manager{
		store:  store,
		cookie: name,
		ttl:    cfg.Duration(),
		secure: cfg.Secure,
		logger: logger,
	}
}

// NewStore builds the store selected by cfg.Session.Backend. The returned close function
// releases backend connections and is never nil.
func NewStore(ctx context.Context, cfg *shared.Config, db *sqlx.DB) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Session.Backend {
	case shared.SessionMemory, "":
		store, err := NewMemoryStore(cfg.Session.Capacity)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create memory session store: %w", err)
		}
		return store, noop, nil
	case shared.SessionDatabase:
		return NewDatabaseStore(repositories.NewSessionRepository(db)), noop, nil
	case shared.SessionRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		return NewRedisStore(client, cfg.Redis.Prefix), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: unknown session backend %q", shared.ErrInvalidConfig, cfg.Session.Backend)
	}
}

// Middleware attaches the request's session to its context, creating an unsaved one when the
// cookie is missing, malformed or points at an expired session.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.load(r)
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (m *Manager) load(r *http.Request) *Session {
	c, err := r.Cookie(m.cookie)
	if err != nil {
		return m.fresh()
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return m.fresh()
	}

	data, err := m.store.Load(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, shared.ErrSessionNotFound) {
			m.logger.Warn("failed to load session", "error", err)
		}
		return m.fresh()
	}
	return &Session{ID: c.Value, Data: *data}
}

func (m *Manager) fresh() *Session {
	return &Session{ID: shared.GenerateID(), isNew: true}
}

// Save persists s and (re)sets the session cookie. Call it before writing the response body.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Save(ctx, s.ID, s.Data, m.ttl); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.isNew = false
	return nil
}

// Destroy deletes s from the store and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{Name: m.cookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	return nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookie
}
