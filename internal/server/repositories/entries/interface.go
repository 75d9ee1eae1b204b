package entries

import (
	"context"

	"github.com/ksolodov/fieldreporter/internal/api"
)

// Repository describes persistence operations for entry rows, with the
// same optimistic concurrency contract as the reports repository.
type Repository interface {
	Insert(ctx context.Context, entry *api.Entry) error
	Update(ctx context.Context, entry *api.Entry, baseVersion int64) error
	GetByID(ctx context.Context, id string) (*api.Entry, error)
	SelectUpdated(ctx context.Context, sinceVersion int64) ([]api.Entry, error)
}
