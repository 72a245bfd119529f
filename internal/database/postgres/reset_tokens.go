package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/sketch-match/internal/database"
)

// ResetTokenRepository provides PostgreSQL-backed password reset grants
type ResetTokenRepository struct {
	pool *Pool
}

// NewResetTokenRepository creates a new PostgreSQL reset token repository
func NewResetTokenRepository(pool *Pool) *ResetTokenRepository {
	return &ResetTokenRepository{pool: pool}
}

// SaveResetToken stores a new grant
func (r *ResetTokenRepository) SaveResetToken(ctx context.Context, t database.ResetToken) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO reset_tokens (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)",
		t.ID, t.UserID, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

// GetResetToken returns nil if not found
func (r *ResetTokenRepository) GetResetToken(ctx context.Context, id string) (*database.ResetToken, error) {
	var t database.ResetToken
	var usedAt sql.NullTime
	err := r.pool.QueryRow(ctx,
		"SELECT id, user_id, created_at, expires_at, used_at FROM reset_tokens WHERE id = $1", id,
	).Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reset token: %w", err)
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

// MarkResetTokenUsed returns false when the token was already used or does not exist
func (r *ResetTokenRepository) MarkResetTokenUsed(ctx context.Context, id string) (bool, error) {
	result, err := r.pool.Exec(ctx,
		"UPDATE reset_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL", id)
	if err != nil {
		return false, fmt.Errorf("mark reset token used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark reset token used: %w", err)
	}
	return n == 1, nil
}

// DeleteExpiredResetTokens removes expired or used grants and returns the count deleted
func (r *ResetTokenRepository) DeleteExpiredResetTokens(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM reset_tokens WHERE expires_at <= NOW() OR used_at IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted reset tokens: %w", err)
	}
	return n, nil
}
