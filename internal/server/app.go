// Package server wires the sync server together: database, blob
// storage, services and the HTTP endpoint.
package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/ksolodov/fieldreporter/internal/logging"
	"github.com/ksolodov/fieldreporter/internal/server/blob"
	"github.com/ksolodov/fieldreporter/internal/server/config"
	serverdb "github.com/ksolodov/fieldreporter/internal/server/db"
	serverhttp "github.com/ksolodov/fieldreporter/internal/server/http"
	"github.com/ksolodov/fieldreporter/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

// App owns the server's long-lived resources.
type App struct {
	cfg    *config.Config
	logger logging.Logger
	db     *sql.DB
	srv    *http.Server
}

// NewApp opens the database, applies migrations and builds the HTTP
// endpoint.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	db, err := serverdb.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	blobStore, err := blob.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deviceService := services.NewDeviceService(db, cfg.SecretKey, cfg.TokenValidityDuration, logger)
	syncService := services.NewSyncService(db, logger)
	mediaService, err := services.NewMediaService(db, blobStore, cfg.ChunkStagingDir, logger)
	if err != nil {
		return nil, err
	}

	handlers := serverhttp.NewHandlers(deviceService, syncService, mediaService, logger)
	router := serverhttp.NewRouter(handlers, []byte(cfg.SecretKey))

	return &App{
		cfg:    cfg,
		logger: logger,
		db:     db,
		srv:    &http.Server{Addr: cfg.EndpointAddr, Handler: router},
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "listening", "addr", a.cfg.EndpointAddr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		_ = a.db.Close()
		return err
	case <-ctx.Done():
	}

	a.logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "shutdown failed", "error", err)
	}

	return a.db.Close()
}
