package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/spotalytics/internal/models"
	"github.com/desertthunder/spotalytics/internal/shared"
	"github.com/jmoiron/sqlx"
)

// UserRepository persists the Spotify user IDs that own mirrored playlists.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure inserts the user when missing. An existing row is left untouched.
func (r *UserRepository) Ensure(ctx context.Context, userID string) error {
	return ensureUser(ctx, r.db, userID)
}

func ensureUser(ctx context.Context, ex sqlx.ExtContext, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrMissingArgument)
	}
	query := ex.Rebind(`INSERT INTO users (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`)
	if _, err := ex.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID, returning [shared.ErrUserNotFound] when absent.
func (r *UserRepository) Get(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	query := r.db.Rebind(`SELECT user_id, created_at FROM users WHERE user_id = ?`)
	err := r.db.GetContext(ctx, &user, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Exists reports whether the user has a row.
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE user_id = ?)`)
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

// List returns every user ordered by ID.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, `SELECT user_id, created_at FROM users ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Delete removes the user. Playlists and their tracks go with it.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	query := r.db.Rebind(`DELETE FROM users WHERE user_id = ?`)
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, userID)
	}
	return nil
}
