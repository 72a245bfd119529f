package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/sketch-match/internal/database"
)

const detailColumns = `image_id, offense, mittimus, class, count, custody_date, sentence, county, sentence_discharged, mark, url`

// DetailRepository serves case metadata from a legacy MariaDB records table.
// It is read-only; imports always go to PostgreSQL.
type DetailRepository struct {
	pool *Pool
}

// NewDetailRepository creates a new MariaDB-backed detail reader.
func NewDetailRepository(pool *Pool) *DetailRepository {
	return &DetailRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetail(row rowScanner) (database.DetailRecord, error) {
	var d database.DetailRecord
	var offense, mittimus, class, count, custody, sentence, county, discharged, mark, url sql.NullString
	err := row.Scan(&d.ImageID, &offense, &mittimus, &class, &count, &custody,
		&sentence, &county, &discharged, &mark, &url)
	if err != nil {
		return d, err
	}
	d.Offense = offense.String
	d.Mittimus = mittimus.String
	d.Class = class.String
	d.Count = count.String
	d.CustodyDate = custody.String
	d.Sentence = sentence.String
	d.County = county.String
	d.SentenceDischarged = discharged.String
	d.Mark = mark.String
	d.URL = url.String
	return d, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// GetDetails returns records for the given ids in request order; unknown ids are skipped.
func (r *DetailRepository) GetDetails(ctx context.Context, ids []string) ([]database.DetailRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT ` + detailColumns + ` FROM details WHERE image_id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query details: %w", err)
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

	result := make([]database.DetailRecord, 0, len(byID))
	seen := make(map[string]bool, len(byID))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, d)
	}
	return result, nil
}

// GetDetail retrieves one record, returns nil if not found.
func (r *DetailRepository) GetDetail(ctx context.Context, id string) (*database.DetailRecord, error) {
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+detailColumns+` FROM details WHERE image_id = ?`, id)
	d, err := scanDetail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get detail: %w", err)
	}
	return &d, nil
}

// CountDetails returns the number of records in the table.
func (r *DetailRepository) CountDetails(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM details`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count details: %w", err)
	}
	return n, nil
}
