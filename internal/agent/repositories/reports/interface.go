package reports

import (
	"context"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
)

// Repository describes persistence operations for reports.
type Repository interface {
	CreateOrUpdate(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	GetAll(ctx context.Context) ([]models.Report, error)
	MarkSynced(ctx context.Context, id string, version int64) error
	DeleteByID(ctx context.Context, id string) error
	ApplyRemote(ctx context.Context, report *models.Report) error
}
