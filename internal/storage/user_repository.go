package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// User is the slice of the platform's user record the gateway touches
type User struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Role       string `db:"role" json:"role"`
	TokenCount int64  `db:"token_count" json:"token_count"`
}

// UserRepository keeps the per-user running token counter
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	var user User
	query := r.db.rebind(`SELECT id, name, role, token_count FROM users WHERE id = ?`)

	if err := r.db.conn.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// Create inserts a user
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	query := r.db.rebind(`INSERT INTO users (id, name, role, token_count) VALUES (?, ?, ?, ?)`)

	if _, err := r.db.conn.ExecContext(ctx, query, user.ID, user.Name, user.Role, user.TokenCount); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// IncrementTokenCount adds delta to the user's token counter. The addition
// happens in SQL so concurrent increments are not lost. A missing user is
// not an error.
func (r *UserRepository) IncrementTokenCount(ctx context.Context, userID string, delta int64) error {
	return r.incrementTokenCount(ctx, r.db.conn, userID, delta)
}

func (r *UserRepository) incrementTokenCount(ctx context.Context, exec sqlx.ExecerContext, userID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	query := r.db.rebind(`UPDATE users SET token_count = token_count + ? WHERE id = ?`)

	if _, err := exec.ExecContext(ctx, query, delta, userID); err != nil {
		return fmt.Errorf("failed to increment token count: %w", err)
	}
	return nil
}
