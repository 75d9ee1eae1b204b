// Package media persists media rows and their upload state on the
// server side.
package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
	"github.com/ksolodov/fieldreporter/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const mediaColumns = `id, entry_id, media_type, size, duration_ms, storage_key, remote_url, uploaded_bytes, complete, deleted, version, created_at, updated_at`

func scanMedia(row interface{ Scan(...any) error }, m *models.Media) error {
	return row.Scan(&m.ID, &m.EntryID, &m.Type, &m.Size, &m.DurationMS, &m.StorageKey,
		&m.RemoteURL, &m.UploadedBytes, &m.Complete, &m.Deleted, &m.Version,
		&m.CreatedAt, &m.UpdatedAt)
}

func (r *PostgresRepository) Insert(ctx context.Context, m *models.Media) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO media (id, entry_id, media_type, size, duration_ms, deleted, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.EntryID, m.Type, m.Size, m.DurationMS, m.Deleted, m.Version, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert media: %w", err)
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

func (r *PostgresRepository) Update(ctx context.Context, m *models.Media, baseVersion int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE media
		 SET deleted=$1, version=$2, updated_at=$3
		 WHERE id=$4 AND version=$5`,
		m.Deleted, m.Version, m.UpdatedAt, m.ID, baseVersion)
	if err != nil {
		return fmt.Errorf("failed to update media: %w", err)
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

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE id=$1`, id)

	m := &models.Media{}
	if err := scanMedia(row, m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) SetUploadedBytes(ctx context.Context, id string, uploadedBytes int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE media SET uploaded_bytes=$1, updated_at=now() WHERE id=$2`, uploadedBytes, id)
	if err != nil {
		return fmt.Errorf("failed to record uploaded bytes: %w", err)
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

// MarkComplete stamps the assembled object location and assigns the row
// a fresh version so other devices pick it up on the next pull.
func (r *PostgresRepository) MarkComplete(ctx context.Context, id, storageKey, remoteURL string, version int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE media
		 SET complete=TRUE, storage_key=$1, remote_url=$2, uploaded_bytes=size, version=$3, updated_at=now()
		 WHERE id=$4`,
		storageKey, remoteURL, version, id)
	if err != nil {
		return fmt.Errorf("failed to mark media complete: %w", err)
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

func (r *PostgresRepository) SelectUpdated(ctx context.Context, sinceVersion int64) ([]models.Media, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media
		 WHERE version > $1 AND (complete = TRUE OR deleted = TRUE)
		 ORDER BY version`, sinceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select media: %w", err)
	}
	defer rows.Close()

	var result []models.Media
	for rows.Next() {
		var item models.Media
		if err := scanMedia(rows, &item); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
