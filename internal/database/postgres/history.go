package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/sketch-match/internal/database"
)

// HistoryRepository provides PostgreSQL-backed retrieval history
type HistoryRepository struct {
	pool *Pool
}

// NewHistoryRepository creates a new PostgreSQL history repository
func NewHistoryRepository(pool *Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// SaveHistory stores a history item
func (r *HistoryRepository) SaveHistory(ctx context.Context, item *database.HistoryItem) error {
	src, err := json.Marshal(item.SrcImages)
	if err != nil {
		return fmt.Errorf("marshal source images: %w", err)
	}
	results, err := json.Marshal(item.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		"INSERT INTO history_items (id, user_id, src_images, results, created_at) VALUES ($1, $2, $3, $4, $5)",
		item.ID, item.UserID, src, results, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// ListHistory returns the user's items, oldest first
func (r *HistoryRepository) ListHistory(ctx context.Context, userID string) ([]database.HistoryItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, src_images, results, created_at
		FROM history_items
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := []database.HistoryItem{}
	for rows.Next() {
		var item database.HistoryItem
		var src, results []byte
		if err := rows.Scan(&item.ID, &item.UserID, &src, &results, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal(src, &item.SrcImages); err != nil {
			return nil, fmt.Errorf("decode source images: %w", err)
		}
		if err := json.Unmarshal(results, &item.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}
