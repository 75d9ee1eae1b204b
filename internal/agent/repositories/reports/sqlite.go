package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
)

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const reportColumns = `id, title, notes, created_at, updated_at, sync_pending, remote_version, deleted`

func scanReport(row interface{ Scan(...any) error }, r *models.Report) error {
	return row.Scan(&r.ID, &r.Title, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
		&r.SyncPending, &r.RemoteVersion, &r.Deleted)
}

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, rep *models.Report) error {
	query := ` INSERT INTO reports (id, title, notes, created_at, updated_at, sync_pending, remote_version, deleted)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				notes = excluded.notes,
				updated_at = excluded.updated_at,
				sync_pending = 1,
				deleted = excluded.deleted
	`
	_, err := r.db.ExecContext(ctx, query,
		rep.ID, rep.Title, rep.Notes, rep.CreatedAt, rep.UpdatedAt, rep.RemoteVersion, rep.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert report: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=?`, id)

	rep := &models.Report{}
	if err := scanReport(row, rep); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return rep, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE deleted=0 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select reports: %w", err)
	}
	defer rows.Close()

	var result []models.Report
	for rows.Next() {
		var item models.Report
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

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reports SET sync_pending=0, remote_version=? WHERE id=?`, version, id)
	if err != nil {
		return fmt.Errorf("failed to mark report synced: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reports SET deleted=1, sync_pending=1 WHERE id=? AND deleted=0`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ApplyRemote(ctx context.Context, rep *models.Report) error {
	query := ` INSERT INTO reports (id, title, notes, created_at, updated_at, sync_pending, remote_version, deleted)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				notes = excluded.notes,
				updated_at = excluded.updated_at,
				sync_pending = 0,
				remote_version = excluded.remote_version,
				deleted = excluded.deleted
	`
	_, err := r.db.ExecContext(ctx, query,
		rep.ID, rep.Title, rep.Notes, rep.CreatedAt, rep.UpdatedAt, rep.RemoteVersion, rep.Deleted)
	if err != nil {
		return fmt.Errorf("failed to apply remote report: %w", err)
	}
	return nil
}
