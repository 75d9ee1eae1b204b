package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
)

// SQLiteRepository implements Repository over a dbx.DBTX, so it can run
// inside the store's write transactions.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entryColumns = `id, report_id, type, content, latitude, longitude,
	captured_at, created_at, updated_at, sync_pending, remote_version, deleted`

func scanEntry(row interface{ Scan(...any) error }, e *models.Entry) error {
	return row.Scan(&e.ID, &e.ReportID, &e.Type, &e.Content, &e.Latitude, &e.Longitude,
		&e.CapturedAt, &e.CreatedAt, &e.UpdatedAt, &e.SyncPending, &e.RemoteVersion, &e.Deleted)
}

// CreateOrUpdate upserts an entry by id. The row is always re-flagged
// sync-pending: any local write needs to reach the server again.
func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, e *models.Entry) error {
	query := ` INSERT INTO entries (id, report_id, type, content, latitude, longitude,
			captured_at, created_at, updated_at, sync_pending, remote_version, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				updated_at = excluded.updated_at,
				sync_pending = 1,
				deleted = excluded.deleted
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.ReportID, e.Type, e.Content, e.Latitude, e.Longitude,
		e.CapturedAt, e.CreatedAt, e.UpdatedAt, e.RemoteVersion, e.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// GetByID returns one entry, including tombstones.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	e := &models.Entry{}
	if err := scanEntry(row, e); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return e, nil
}

// GetByReport lists live entries for a report ordered by capture time.
func (r *SQLiteRepository) GetByReport(ctx context.Context, reportID string) ([]models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE report_id=? AND deleted=0 ORDER BY captured_at, id`
	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []models.Entry
	for rows.Next() {
		var item models.Entry
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

// GetAllPending returns entries flagged sync_pending=1, tombstones
// included so deletions propagate too.
func (r *SQLiteRepository) GetAllPending(ctx context.Context) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE sync_pending=1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending entries: %w", err)
	}
	defer rows.Close()

	var pending []*models.Entry
	for rows.Next() {
		entry := &models.Entry{}
		if err := scanEntry(rows, entry); err != nil {
			return nil, err
		}
		pending = append(pending, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pending, nil
}

// MarkSynced clears sync_pending and records the server version. It
// expects the entry to exist.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	query := `UPDATE entries SET sync_pending=0, remote_version=? WHERE id=?`
	res, err := r.db.ExecContext(ctx, query, version, id)
	if err != nil {
		return fmt.Errorf("failed to mark entry synced: %w", err)
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

// DeleteByID tombstones an entry (soft delete) and re-flags it pending.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	query := `UPDATE entries SET deleted=1, sync_pending=1 WHERE id=? AND deleted=0`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
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

// ApplyRemote upserts server state verbatim. The row ends up not
// pending: it mirrors what the server already has.
func (r *SQLiteRepository) ApplyRemote(ctx context.Context, e *models.Entry) error {
	query := ` INSERT INTO entries (id, report_id, type, content, latitude, longitude,
			captured_at, created_at, updated_at, sync_pending, remote_version, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				updated_at = excluded.updated_at,
				sync_pending = 0,
				remote_version = excluded.remote_version,
				deleted = excluded.deleted
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.ReportID, e.Type, e.Content, e.Latitude, e.Longitude,
		e.CapturedAt, e.CreatedAt, e.UpdatedAt, e.RemoteVersion, e.Deleted)
	if err != nil {
		return fmt.Errorf("failed to apply remote entry: %w", err)
	}
	return nil
}
