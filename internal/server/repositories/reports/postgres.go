// Package reports persists report rows on the server side.
package reports

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

const reportColumns = `id, title, notes, deleted, version, created_at, updated_at`

func scanReport(row interface{ Scan(...any) error }, r *api.Report) error {
	return row.Scan(&r.ID, &r.Title, &r.Notes, &r.Deleted, &r.Version, &r.CreatedAt, &r.UpdatedAt)
}

func (r *PostgresRepository) Insert(ctx context.Context, rep *api.Report) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (id, title, notes, deleted, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		rep.ID, rep.Title, rep.Notes, rep.Deleted, rep.Version, rep.CreatedAt, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
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

func (r *PostgresRepository) Update(ctx context.Context, rep *api.Report, baseVersion int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reports
		 SET title=$1, notes=$2, deleted=$3, version=$4, updated_at=$5
		 WHERE id=$6 AND version=$7`,
		rep.Title, rep.Notes, rep.Deleted, rep.Version, rep.UpdatedAt, rep.ID, baseVersion)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
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

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*api.Report, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id=$1`, id)

	rep := &api.Report{}
	if err := scanReport(row, rep); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return rep, nil
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, sinceVersion int64) ([]api.Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE version > $1 ORDER BY version`, sinceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select reports: %w", err)
	}
	defer rows.Close()

	var result []api.Report
	for rows.Next() {
		var item api.Report
		if err := scanReport(rows, &item); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
