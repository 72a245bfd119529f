package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/sketch-match/internal/database"
)

const detailColumns = `image_id, offense, mittimus, class, count, custody_date, sentence,
	county, sentence_discharged, mark, url`

// DetailRepository provides PostgreSQL-backed case metadata storage
type DetailRepository struct {
	pool *Pool
}

// NewDetailRepository creates a new PostgreSQL detail repository
func NewDetailRepository(pool *Pool) *DetailRepository {
	return &DetailRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetail(row rowScanner) (database.DetailRecord, error) {
	var d database.DetailRecord
	err := row.Scan(
		&d.ImageID, &d.Offense, &d.Mittimus, &d.Class, &d.Count, &d.CustodyDate,
		&d.Sentence, &d.County, &d.SentenceDischarged, &d.Mark, &d.URL,
	)
	return d, err
}

// GetDetails returns the stored records for ids in request order; unknown ids are skipped
func (r *DetailRepository) GetDetails(ctx context.Context, ids []string) ([]database.DetailRecord, error) {
	if len(ids) == 0 {
		return []database.DetailRecord{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+detailColumns+` FROM details WHERE image_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get details: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]database.DetailRecord, len(ids))
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan detail: %w", err)
		}
		byID[d.ImageID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate details: %w", err)
	}

	return orderDetails(ids, byID), nil
}

// orderDetails returns the records of byID following ids, once per id.
func orderDetails(ids []string, byID map[string]database.DetailRecord) []database.DetailRecord {
	result := make([]database.DetailRecord, 0, len(byID))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if d, ok := byID[id]; ok {
			result = append(result, d)
		}
	}
	return result
}

// GetDetail retrieves one record, returns nil if not found
func (r *DetailRepository) GetDetail(ctx context.Context, id string) (*database.DetailRecord, error) {
	d, err := scanDetail(r.pool.QueryRow(ctx, `SELECT `+detailColumns+` FROM details WHERE image_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get detail: %w", err)
	}
	return &d, nil
}

// CountDetails returns the total number of records
func (r *DetailRepository) CountDetails(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM details").Scan(&count); err != nil {
		return 0, fmt.Errorf("count details: %w", err)
	}
	return count, nil
}

// UpsertDetail inserts or replaces a record
func (r *DetailRepository) UpsertDetail(ctx context.Context, d database.DetailRecord) error {
	if d.ImageID == "" {
		return errors.New("detail image id is required")
	}
	query := `
		INSERT INTO details (` + detailColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (image_id) DO UPDATE SET
			offense = EXCLUDED.offense,
			mittimus = EXCLUDED.mittimus,
			class = EXCLUDED.class,
			count = EXCLUDED.count,
			custody_date = EXCLUDED.custody_date,
			sentence = EXCLUDED.sentence,
			county = EXCLUDED.county,
			sentence_discharged = EXCLUDED.sentence_discharged,
			mark = EXCLUDED.mark,
			url = EXCLUDED.url,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		d.ImageID, d.Offense, d.Mittimus, d.Class, d.Count, d.CustodyDate,
		d.Sentence, d.County, d.SentenceDischarged, d.Mark, d.URL,
	)
	if err != nil {
		return fmt.Errorf("upsert detail: %w", err)
	}
	return nil
}

// SetDetailURL sets the display url, creating an otherwise empty record when missing
func (r *DetailRepository) SetDetailURL(ctx context.Context, id, url string) error {
	query := `
		INSERT INTO details (image_id, url, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (image_id) DO UPDATE SET url = EXCLUDED.url, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, id, url); err != nil {
		return fmt.Errorf("set detail url: %w", err)
	}
	return nil
}
