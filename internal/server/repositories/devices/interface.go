package devices

import (
	"context"

	"github.com/ksolodov/fieldreporter/internal/server/models"
)

// Repository describes persistence operations for enrolled devices.
type Repository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id string) (*models.Device, error)
}
