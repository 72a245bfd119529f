package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/sketch-match/internal/database"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// UserRepository provides PostgreSQL-backed account storage
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// CreateUser inserts a user, returns database.ErrDuplicate when the email is taken
func (r *UserRepository) CreateUser(ctx context.Context, u *database.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return database.ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) getUser(ctx context.Context, where string, arg any) (*database.User, error) {
	var u database.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail returns nil if not found
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	return r.getUser(ctx, "email = $1", email)
}

// GetUserByID returns nil if not found
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*database.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

// UpdatePassword replaces the stored password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1", userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update password: user %s not found", userID)
	}
	return nil
}
