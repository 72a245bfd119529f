package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/sketch-match/internal/database"
)

// GeneratedImageRepository provides PostgreSQL-backed generator output storage
type GeneratedImageRepository struct {
	pool *Pool
}

// NewGeneratedImageRepository creates a new PostgreSQL generated image repository
func NewGeneratedImageRepository(pool *Pool) *GeneratedImageRepository {
	return &GeneratedImageRepository{pool: pool}
}

// SaveGeneratedImage stores one generated image
func (r *GeneratedImageRepository) SaveGeneratedImage(ctx context.Context, img *database.GeneratedImage) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO generated_images (id, user_id, name, image, created_at) VALUES ($1, $2, $3, $4, $5)",
		img.ID, img.UserID, img.Name, img.Image, img.CreatedAt)
	if err != nil {
		return fmt.Errorf("save generated image: %w", err)
	}
	return nil
}

// ListGeneratedImages returns the user's images, newest first
func (r *GeneratedImageRepository) ListGeneratedImages(ctx context.Context, userID string) ([]database.GeneratedImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, image, created_at
		FROM generated_images
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list generated images: %w", err)
	}
	defer rows.Close()

	images := []database.GeneratedImage{}
	for rows.Next() {
		var img database.GeneratedImage
		if err := rows.Scan(&img.ID, &img.UserID, &img.Name, &img.Image, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generated image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generated images: %w", err)
	}
	return images, nil
}
