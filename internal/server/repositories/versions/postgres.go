// Package versions maintains the global version counter backing sync
// ordering.
package versions

import (
	"context"
	"fmt"

	"github.com/ksolodov/fieldreporter/internal/dbx"
)

// PostgresRepository implements Repository over the sync_state row.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Next increments and returns the counter. Run inside the same
// transaction as the mutation it numbers so the two commit together.
func (r *PostgresRepository) Next(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE sync_state SET current_version = current_version + 1 WHERE id = 1
		 RETURNING current_version`)

	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to advance version counter: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) Current(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT current_version FROM sync_state WHERE id = 1`)

	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read version counter: %w", err)
	}
	return v, nil
}
