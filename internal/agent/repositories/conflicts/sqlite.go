package conflicts

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

const conflictColumns = `id, entity_type, entity_id, reason, local_snapshot, remote_snapshot, created_at`

func scanConflict(row interface{ Scan(...any) error }, c *models.ConflictRecord) error {
	return row.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.Reason,
		&c.LocalSnapshot, &c.RemoteSnapshot, &c.CreatedAt)
}

func (r *SQLiteRepository) Save(ctx context.Context, c *models.ConflictRecord) error {
	query := ` INSERT INTO conflicts (entity_type, entity_id, reason, local_snapshot, remote_snapshot, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_type, entity_id) DO UPDATE SET
				reason = excluded.reason,
				remote_snapshot = excluded.remote_snapshot,
				created_at = excluded.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		c.EntityType, c.EntityID, c.Reason, c.LocalSnapshot, c.RemoteSnapshot, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conflict: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id=?`, id)

	c := &models.ConflictRecord{}
	if err := scanConflict(row, c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.ConflictRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+conflictColumns+` FROM conflicts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []models.ConflictRecord
	for rows.Next() {
		var c models.ConflictRecord
		if err := scanConflict(rows, &c); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove conflict: %w", err)
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
