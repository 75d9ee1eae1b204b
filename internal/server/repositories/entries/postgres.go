// Package entries persists entry rows on the server side.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, report_id, entry_type, content, latitude, longitude, deleted, version, captured_at, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }, e *api.Entry) error {
	return row.Scan(&e.ID, &e.ReportID, &e.Type, &e.Content, &e.Latitude, &e.Longitude,
		&e.Deleted, &e.Version, &e.CapturedAt, &e.CreatedAt, &e.UpdatedAt)
}

func (r *PostgresRepository) Insert(ctx context.Context, e *api.Entry) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (id, report_id, entry_type, content, latitude, longitude, deleted, version, captured_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ReportID, e.Type, e.Content, e.Latitude, e.Longitude,
		e.Deleted, e.Version, e.CapturedAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrVersionConflict
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, e *api.Entry, baseVersion int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries
		 SET content=$1, latitude=$2, longitude=$3, deleted=$4, version=$5, updated_at=$6
		 WHERE id=$7 AND version=$8`,
		e.Content, e.Latitude, e.Longitude, e.Deleted, e.Version, e.UpdatedAt, e.ID, baseVersion)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrVersionConflict
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*api.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id=$1`, id)

	e := &api.Entry{}
	if err := scanEntry(row, e); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, sinceVersion int64) ([]api.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE version > $1 ORDER BY version`, sinceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []api.Entry
	for rows.Next() {
		var item api.Entry
		if err := scanEntry(rows, &item); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
