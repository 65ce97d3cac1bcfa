// package session keeps per-browser OAuth state and tokens on the server, keyed by an opaque cookie
package session

import (
	"context"
	"time"

	"github.com/desertthunder/spotalytics/internal/services"
)

// Data is everything stored for a session.
type Data struct {
	State  string          `json:"state,omitempty"`
	Tokens services.Tokens `json:"tokens"`
	UserID string          `json:"user_id,omitempty"`
}

// Session is a loaded session. A new session has not been saved yet.
type Session struct {
	ID string
	Data

	isNew bool
}

// IsNew reports whether the session was created for this request.
func (s *Session) IsNew() bool {
	return s.isNew
}

// Store persists session [Data] by ID. Load returns [shared.ErrSessionNotFound] for unknown or
// expired sessions.
type Store interface {
	Load(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, id string, data Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by [Manager.Middleware], or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
