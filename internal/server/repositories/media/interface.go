package media

import (
	"context"

	"github.com/ksolodov/fieldreporter/internal/server/models"
)

// Repository describes persistence operations for media rows. Insert
// enforces the same optimistic concurrency contract as the other
// entity repositories; SelectUpdated only returns rows whose payload
// is fully assembled, so other devices never see half-uploaded media.
type Repository interface {
	Insert(ctx context.Context, m *models.Media) error
	Update(ctx context.Context, m *models.Media, baseVersion int64) error
	GetByID(ctx context.Context, id string) (*models.Media, error)
	SetUploadedBytes(ctx context.Context, id string, uploadedBytes int64) error
	MarkComplete(ctx context.Context, id, storageKey, remoteURL string, version int64) error
	SelectUpdated(ctx context.Context, sinceVersion int64) ([]models.Media, error)
}
