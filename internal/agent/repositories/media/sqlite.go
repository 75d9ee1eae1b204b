package media

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

const mediaColumns = `id, entry_id, type, local_path, remote_url, thumbnail_path,
	size, duration_ms, status, progress, uploaded_bytes, created_at, updated_at`

func scanMedia(row interface{ Scan(...any) error }, m *models.Media) error {
	return row.Scan(&m.ID, &m.EntryID, &m.Type, &m.LocalPath, &m.RemoteURL, &m.ThumbnailPath,
		&m.Size, &m.DurationMS, &m.Status, &m.Progress, &m.UploadedBytes, &m.CreatedAt, &m.UpdatedAt)
}

func (r *SQLiteRepository) Create(ctx context.Context, m *models.Media) error {
	query := ` INSERT INTO media (id, entry_id, type, local_path, remote_url, thumbnail_path,
			size, duration_ms, status, progress, uploaded_bytes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.EntryID, m.Type, m.LocalPath, m.RemoteURL, m.ThumbnailPath,
		m.Size, m.DurationMS, m.Status, m.Progress, m.UploadedBytes, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert media: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id=?`, id)

	m := &models.Media{}
	if err := scanMedia(row, m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) GetByEntryID(ctx context.Context, entryID string) (*models.Media, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE entry_id=?`, entryID)

	m := &models.Media{}
	if err := scanMedia(row, m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return m, nil
}

// SetStatus checks the move against the lifecycle before writing; an
// illegal transition returns ErrConflict and leaves the row untouched.
func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status models.ProcessingStatus) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(status) {
		return fmt.Errorf("%w: media %s cannot move %s -> %s", common.ErrConflict, id, current.Status, status)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE media SET status=? WHERE id=?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update media status: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RecordProgress(ctx context.Context, id string, uploadedBytes int64, progress int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE media SET uploaded_bytes=?, progress=? WHERE id=?`, uploadedBytes, progress, id)
	if err != nil {
		return fmt.Errorf("failed to record media progress: %w", err)
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

func (r *SQLiteRepository) MarkComplete(ctx context.Context, id string, remoteURL string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(models.ProcessingComplete) {
		return fmt.Errorf("%w: media %s cannot move %s -> %s",
			common.ErrConflict, id, current.Status, models.ProcessingComplete)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE media SET status=?, remote_url=?, progress=100, uploaded_bytes=size WHERE id=?`,
		models.ProcessingComplete, remoteURL, id)
	if err != nil {
		return fmt.Errorf("failed to mark media complete: %w", err)
	}
	return nil
}
