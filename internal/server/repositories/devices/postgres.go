// Package devices persists enrolled devices.
package devices

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

func (r *PostgresRepository) Create(ctx context.Context, device *models.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, name) VALUES ($1, $2)`, device.ID, device.Name)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM devices WHERE id=$1`, id)

	device := &models.Device{}
	if err := row.Scan(&device.ID, &device.Name, &device.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return device, nil
}
