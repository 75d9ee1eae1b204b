package entries

import (
	"context"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
)

// Repository describes persistence operations for captured entries.
// Implementations are backed by the local SQLite database.
type Repository interface {
	// CreateOrUpdate upserts an entry by ID, flags it sync-pending and
	// refreshes updated_at. Idempotent on identical ID.
	CreateOrUpdate(ctx context.Context, entry *models.Entry) error

	// GetByID returns a single entry, tombstones included.
	GetByID(ctx context.Context, id string) (*models.Entry, error)

	// GetByReport returns the report's live entries in capture-time order.
	GetByReport(ctx context.Context, reportID string) ([]models.Entry, error)

	// GetAllPending returns entries awaiting sync.
	GetAllPending(ctx context.Context) ([]*models.Entry, error)

	// MarkSynced clears the sync-pending flag and records the
	// server-assigned version.
	MarkSynced(ctx context.Context, id string, version int64) error

	// DeleteByID tombstones an entry and flags it sync-pending so the
	// deletion propagates.
	DeleteByID(ctx context.Context, id string) error

	// ApplyRemote upserts server state without flagging sync-pending.
	ApplyRemote(ctx context.Context, entry *models.Entry) error
}
