// Package services implements the server-side business logic behind the
// HTTP handlers: device enrollment, push/pull sync and chunked media
// ingestion.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/logging"
	"github.com/ksolodov/fieldreporter/internal/server/auth"
	"github.com/ksolodov/fieldreporter/internal/server/models"
	"github.com/ksolodov/fieldreporter/internal/server/repositories/devices"
)

// DeviceService enrolls devices and issues access tokens.
type DeviceService struct {
	devices       devices.Repository
	secretKey     []byte
	tokenValidity time.Duration
	logger        logging.Logger
}

func NewDeviceService(db *sql.DB, secretKey string, tokenValidity time.Duration, logger logging.Logger) *DeviceService {
	return &DeviceService{
		devices:       devices.NewPostgresRepository(db),
		secretKey:     []byte(secretKey),
		tokenValidity: tokenValidity,
		logger:        logger,
	}
}

// Register enrolls a new device under a fresh id and returns its first
// access token.
func (s *DeviceService) Register(ctx context.Context, deviceName string) (*api.RegisterResponse, error) {
	if deviceName == "" {
		return nil, fmt.Errorf("%w: device name is required", common.ErrPermanentValidation)
	}

	device := &models.Device{
		ID:   uuid.NewString(),
		Name: deviceName,
	}
	if err := s.devices.Create(ctx, device); err != nil {
		return nil, err
	}

	token, err := auth.GenerateToken(device.ID, s.secretKey, s.tokenValidity)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "device registered", "device_id", device.ID, "name", deviceName)
	return &api.RegisterResponse{DeviceID: device.ID, Token: token}, nil
}

// Login re-issues a token for an already enrolled device.
func (s *DeviceService) Login(ctx context.Context, deviceID string) (*api.LoginResponse, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", common.ErrPermanentValidation)
	}

	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown device", common.ErrUnauthorized)
		}
		return nil, err
	}

	token, err := auth.GenerateToken(device.ID, s.secretKey, s.tokenValidity)
	if err != nil {
		return nil, err
	}
	return &api.LoginResponse{Token: token}, nil
}
