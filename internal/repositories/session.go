package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/jmoiron/sqlx"
)

// SessionRepository stores opaque session payloads keyed by session ID.
type SessionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Load returns the payload of an unexpired session, or [shared.ErrSessionNotFound].
func (r *SessionRepository) Load(ctx context.Context, id string) ([]byte, error) {
	var data string
	query := r.db.Rebind(`SELECT data FROM sessions WHERE id = ? AND expires_at > ?`)
	err := r.db.GetContext(ctx, &data, query, id, r.now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return []byte(data), nil
}

// Save inserts or replaces the session payload with a new expiry.
func (r *SessionRepository) Save(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	query := r.db.Rebind(`
		INSERT INTO sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`)
	if _, err := r.db.ExecContext(ctx, query, id, string(data), expiresAt.Unix()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired purges expired sessions and returns how many were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
