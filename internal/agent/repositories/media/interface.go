package media

import (
	"context"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
)

// Repository describes persistence operations for media payloads.
// Status transitions are validated here so an illegal move (e.g.
// complete back to uploading) never reaches disk.
type Repository interface {
	Create(ctx context.Context, m *models.Media) error
	GetByID(ctx context.Context, id string) (*models.Media, error)
	GetByEntryID(ctx context.Context, entryID string) (*models.Media, error)

	// SetStatus moves the payload through its lifecycle; returns
	// common.ErrConflict when the transition is not a legal forward move.
	SetStatus(ctx context.Context, id string, status models.ProcessingStatus) error

	// RecordProgress persists the last server-acknowledged chunk offset
	// and the derived progress percentage.
	RecordProgress(ctx context.Context, id string, uploadedBytes int64, progress int) error

	// MarkComplete stores the remote URL, full progress and the complete
	// status in one statement.
	MarkComplete(ctx context.Context, id string, remoteURL string) error
}
