package reports

import (
	"context"

	"github.com/ksolodov/fieldreporter/internal/api"
)

// Repository describes persistence operations for report rows.
//
// Insert and Update enforce optimistic concurrency: Insert fails with
// common.ErrVersionConflict when the row already exists, Update when
// the stored version differs from baseVersion.
type Repository interface {
	Insert(ctx context.Context, report *api.Report) error
	Update(ctx context.Context, report *api.Report, baseVersion int64) error
	GetByID(ctx context.Context, id string) (*api.Report, error)
	SelectUpdated(ctx context.Context, sinceVersion int64) ([]api.Report, error)
}
