// Package app wires the agent together: local store, connectivity
// watcher, upload worker, pull syncer and the interactive prompt.
package app

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/capture"
	"github.com/ksolodov/fieldreporter/internal/agent/config"
	"github.com/ksolodov/fieldreporter/internal/agent/connectivity"
	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/agent/remote"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/metadata"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/syncqueue"
	"github.com/ksolodov/fieldreporter/internal/agent/store"
	"github.com/ksolodov/fieldreporter/internal/agent/syncer"
	"github.com/ksolodov/fieldreporter/internal/agent/worker"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/logging"
)

type App struct {
	cfg      *config.Config
	logger   logging.Logger
	db       *sql.DB
	store    *store.Store
	client   *remote.HTTPClient
	monitor  *connectivity.PingMonitor
	worker   *worker.Worker
	syncer   *syncer.Syncer
	importer *capture.FileImporter
	reader   *bufio.Reader
}

func NewApp(cfg *config.Config, logger logging.Logger) (*App, error) {
	ctx := context.Background()

	db, err := store.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	policy := syncqueue.RetryPolicy{
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		MaxRetries: cfg.MaxRetries,
	}
	st := store.NewStore(db, logger, policy)

	client := remote.NewHTTPClient(cfg.ServerURL, 30*time.Second)
	monitor := connectivity.NewPingMonitor(client, logger, cfg.OnlineCheckInterval)

	w := worker.New(st, client, monitor, logger, worker.Options{
		ChunkSize:     cfg.ChunkSize,
		ChunkTimeout:  cfg.ChunkTimeout,
		DrainInterval: cfg.DrainInterval,
	})
	sy := syncer.New(st, client, logger)

	// a rejected push means the server moved ahead; pull, merge, and the
	// surviving local edit is re-queued with the fresh base version
	w.OnConflict = func(ctx context.Context, _ *models.SyncQueueItem) {
		if _, err := sy.Pull(ctx); err != nil {
			logger.Error(ctx, "merge pull after push conflict failed", "error", err)
		}
	}

	importer, err := capture.NewFileImporter(cfg.MediaDir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    st,
		client:   client,
		monitor:  monitor,
		worker:   w,
		syncer:   sy,
		importer: importer,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

// ensureIdentity registers the device on first run, or refreshes the
// token for a known device. Failing while offline is fine; captures
// keep working and the next online transition retries.
func (a *App) ensureIdentity(ctx context.Context) {
	deviceID, err := a.store.Metadata.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		a.logger.Error(ctx, "failed to read device identity", "error", err)
		return
	}

	if deviceID == nil {
		resp, err := a.client.Register(ctx, a.cfg.DeviceName)
		if err != nil {
			a.logger.Warn(ctx, "device registration deferred", "error", err)
			return
		}
		if err := a.store.Metadata.Set(ctx, metadata.KeyDeviceID, []byte(resp.DeviceID)); err != nil {
			a.logger.Error(ctx, "failed to persist device id", "error", err)
		}
		if err := a.store.Metadata.Set(ctx, metadata.KeyDeviceToken, []byte(resp.Token)); err != nil {
			a.logger.Error(ctx, "failed to persist device token", "error", err)
		}
		a.logger.Info(ctx, "device registered", "device_id", resp.DeviceID)
		return
	}

	resp, err := a.client.Login(ctx, string(deviceID))
	if err != nil {
		if errors.Is(err, common.ErrTransientNetwork) {
			a.logger.Warn(ctx, "login deferred, starting offline")
			if token, terr := a.store.Metadata.Get(ctx, metadata.KeyDeviceToken); terr == nil && token != nil {
				a.client.SetToken(string(token))
			}
			return
		}
		a.logger.Error(ctx, "device login failed", "error", err)
		return
	}
	if err := a.store.Metadata.Set(ctx, metadata.KeyDeviceToken, []byte(resp.Token)); err != nil {
		a.logger.Error(ctx, "failed to persist device token", "error", err)
	}
}

// Run starts the background loops and the interactive prompt, and
// shuts everything down when the prompt exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.ensureIdentity(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.worker.Run(ctx)
	}()

	runREPL(ctx, a, a.status, bufio.NewScanner(os.Stdin))

	cancel()
	wg.Wait()
	return a.db.Close()
}
