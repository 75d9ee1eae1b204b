package conflicts

import (
	"context"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
)

// Repository stores parked delete-versus-edit clashes. At most one clash
// exists per entity; a pull that sees the same entity clash again
// refreshes the remote snapshot instead of stacking duplicates.
type Repository interface {
	// Save parks a clash, replacing an earlier one for the same entity.
	Save(ctx context.Context, c *models.ConflictRecord) error

	// GetByID returns one parked clash.
	GetByID(ctx context.Context, id int64) (*models.ConflictRecord, error)

	// List returns every parked clash in creation order.
	List(ctx context.Context) ([]models.ConflictRecord, error)

	// Remove drops a clash after it has been decided.
	Remove(ctx context.Context, id int64) error
}
