package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/dmitrijs2005/ioukeeper/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) InsertAll(ctx context.Context, recs []models.Record, fetchedAt time.Time) error {
	query := `INSERT INTO records (id, position, body, fetched_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET position = excluded.position,
				body = excluded.body,
				fetched_at = excluded.fetched_at
	`
	ts := fetchedAt.UnixMilli()
	for i, rec := range recs {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
		if _, err := r.db.ExecContext(ctx, query, rec.ID, i, body, ts); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Record, time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, body, fetched_at FROM records ORDER BY position, id`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var (
		result []models.Record
		latest int64
	)
	for rows.Next() {
		var (
			id   string
			body []byte
			ts   int64
		)
		if err := rows.Scan(&id, &body, &ts); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan record row: %w", err)
		}
		var rec models.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to decode cached record %s: %w", id, err)
		}
		result = append(result, rec)
		if ts > latest {
			latest = ts
		}
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to iterate record rows: %w", err)
	}

	if latest == 0 {
		return result, time.Time{}, nil
	}
	return result, time.UnixMilli(latest), nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}
