// Package worker drains the sync queue. One drain runs at a time; it
// pushes metadata mutations and streams media payloads in resumable
// chunks, pausing cleanly when the link drops.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/connectivity"
	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/agent/remote"
	"github.com/ksolodov/fieldreporter/internal/agent/store"
	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/logging"
	"github.com/sethvargo/go-retry"
)

// errPaused signals that the drain stopped at a chunk boundary because
// the link dropped. The item keeps its place and its retry budget.
var errPaused = errors.New("upload paused: connection lost")

type Worker struct {
	store   *store.Store
	client  remote.Client
	monitor connectivity.Monitor
	logger  logging.Logger

	chunkSize     int64
	chunkTimeout  time.Duration
	drainInterval time.Duration

	// OnConflict, when set, is invoked after a push is rejected for a
	// stale base version. The stale queue item has already been removed;
	// the hook is expected to pull, merge and re-save, which enqueues a
	// fresh item.
	OnConflict func(ctx context.Context, item *models.SyncQueueItem)

	running atomic.Bool
	wake    chan struct{}
}

type Options struct {
	ChunkSize     int64
	ChunkTimeout  time.Duration
	DrainInterval time.Duration
}

func New(s *store.Store, client remote.Client, monitor connectivity.Monitor, logger logging.Logger, opts Options) *Worker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1 << 20
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = 30 * time.Second
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = time.Minute
	}
	return &Worker{
		store:         s,
		client:        client,
		monitor:       monitor,
		logger:        logger,
		chunkSize:     opts.ChunkSize,
		chunkTimeout:  opts.ChunkTimeout,
		drainInterval: opts.DrainInterval,
		wake:          make(chan struct{}, 1),
	}
}

// Wake requests a drain outside the regular interval, e.g. right after
// a local save.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains on a fixed interval, on Wake, and whenever connectivity
// comes back. It returns when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.drainInterval)
	defer ticker.Stop()

	online := w.monitor.Subscribe()

	for {
		select {
		case <-ticker.C:
			w.ProcessQueue(ctx)
		case <-w.wake:
			w.ProcessQueue(ctx)
		case up := <-online:
			if up {
				w.ProcessQueue(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ProcessQueue drains eligible items until the queue is empty, the link
// drops, or ctx is cancelled. A drain already in progress makes the
// call a no-op.
func (w *Worker) ProcessQueue(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	defer w.running.Store(false)

	for {
		if ctx.Err() != nil || !w.monitor.Online() {
			return
		}

		item, err := w.store.Queue.DequeueNext(ctx, time.Now().UTC())
		if err != nil {
			w.logger.Error(ctx, "failed to read sync queue", "error", err)
			return
		}
		if item == nil {
			return
		}

		w.settle(ctx, item, w.processItem(ctx, item))
	}
}

// settle translates the outcome of one item into a queue transition.
func (w *Worker) settle(ctx context.Context, item *models.SyncQueueItem, err error) {
	now := time.Now().UTC()
	log := w.logger.With("queue_id", item.ID, "entity", item.EntityType, "entity_id", item.EntityID)

	switch {
	case err == nil:
		if ackErr := w.store.Queue.Ack(ctx, item.ID); ackErr != nil {
			log.Error(ctx, "failed to ack queue item", "error", ackErr)
		}

	case errors.Is(err, errPaused):
		// keep the item untouched; the drain resumes where it left off

	case errors.Is(err, common.ErrPermanentValidation):
		log.Warn(ctx, "item rejected permanently, moving to dead letter", "error", err)
		if dlErr := w.store.Queue.MoveToDeadLetter(ctx, item.ID, err.Error(), now); dlErr != nil {
			log.Error(ctx, "failed to dead-letter queue item", "error", dlErr)
		}
		w.markMediaFailed(ctx, item)

	case errors.Is(err, common.ErrVersionConflict) && w.OnConflict != nil:
		log.Info(ctx, "push rejected on stale version, deferring to merge", "error", err)
		if rmErr := w.store.Queue.Remove(ctx, item.ID); rmErr != nil {
			log.Error(ctx, "failed to drop stale queue item", "error", rmErr)
			return
		}
		w.OnConflict(ctx, item)

	default:
		log.Warn(ctx, "item failed, will retry", "retry_count", item.RetryCount+1, "error", err)
		dead, nackErr := w.store.Queue.Nack(ctx, item.ID, err.Error(), now)
		if nackErr != nil {
			log.Error(ctx, "failed to nack queue item", "error", nackErr)
			return
		}
		if dead {
			log.Warn(ctx, "retry budget exhausted, item dead-lettered")
			w.markMediaFailed(ctx, item)
		}
	}
}

// markMediaFailed flags the media record behind a dead-lettered upload
// so it no longer reads as in progress. A manual retry moves it back to
// uploading through the normal path.
func (w *Worker) markMediaFailed(ctx context.Context, item *models.SyncQueueItem) {
	if item.EntityType != string(api.EntityMedia) {
		return
	}
	err := w.store.Media.SetStatus(ctx, item.EntityID, models.ProcessingFailed)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		w.logger.Error(ctx, "failed to flag media as failed", "media_id", item.EntityID, "error", err)
	}
}

func (w *Worker) processItem(ctx context.Context, item *models.SyncQueueItem) error {
	var push api.PushItem
	if err := json.Unmarshal(item.Payload, &push); err != nil {
		return fmt.Errorf("%w: undecodable payload: %v", common.ErrPermanentValidation, err)
	}

	if push.EntityType == api.EntityMedia {
		return w.uploadMedia(ctx, &push)
	}

	results, err := w.client.Push(ctx, []api.PushItem{push})
	if err != nil {
		return err
	}
	if len(results) != 1 {
		return fmt.Errorf("%w: expected one push result, got %d", common.ErrTransientNetwork, len(results))
	}

	version := results[0].Version
	switch push.EntityType {
	case api.EntityReport:
		return w.store.Reports.MarkSynced(ctx, push.EntityID, version)
	case api.EntityEntry:
		return w.store.Entries.MarkSynced(ctx, push.EntityID, version)
	default:
		return fmt.Errorf("%w: unknown entity type %q", common.ErrPermanentValidation, push.EntityType)
	}
}

// uploadMedia registers the media record, then streams the file chunk
// by chunk, resuming from the last server-acknowledged offset.
func (w *Worker) uploadMedia(ctx context.Context, push *api.PushItem) error {
	m, err := w.store.Media.GetByID(ctx, push.EntityID)
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("%w: media record %s is gone", common.ErrPermanentValidation, push.EntityID)
	}
	if err != nil {
		return err
	}

	if _, err := w.client.Push(ctx, []api.PushItem{*push}); err != nil {
		return err
	}

	if m.Status != models.ProcessingUploading {
		if err := w.store.Media.SetStatus(ctx, m.ID, models.ProcessingUploading); err != nil {
			return err
		}
	}

	offset := m.UploadedBytes
	log := w.logger.With("media_id", m.ID, "size", m.Size)
	if offset > 0 {
		log.Info(ctx, "resuming media upload", "offset", offset)
	}

	for offset < m.Size {
		if ctx.Err() != nil || !w.monitor.Online() {
			return errPaused
		}

		chunk, err := readChunk(m.LocalPath, offset, w.chunkSize)
		if err != nil {
			return fmt.Errorf("%w: reading %s at %d: %v", common.ErrPermanentValidation, m.LocalPath, offset, err)
		}

		result, err := w.uploadOneChunk(ctx, m.ID, offset, chunk)
		if errors.Is(err, common.ErrVersionConflict) && result != nil {
			// server knows better where we are; adopt its offset
			log.Warn(ctx, "chunk offset out of sync, adopting server offset", "offset", result.NextOffset)
			offset = result.NextOffset
		} else if err != nil {
			return err
		} else {
			offset = result.NextOffset
		}

		progress := int(offset * 100 / m.Size)
		if err := w.store.Media.RecordProgress(ctx, m.ID, offset, progress); err != nil {
			return err
		}
	}

	result, err := w.client.CompleteMedia(ctx, m.ID)
	if err != nil {
		return err
	}
	if err := w.store.Media.MarkComplete(ctx, m.ID, result.RemoteURL); err != nil {
		return err
	}

	log.Info(ctx, "media upload complete", "remote_url", result.RemoteURL)
	return nil
}

// uploadOneChunk sends a single chunk with a bounded number of quick
// in-place retries for transient hiccups. Anything still failing after
// that bubbles up and costs the item one retry from its budget.
func (w *Worker) uploadOneChunk(ctx context.Context, mediaID string, offset int64, chunk []byte) (*api.ChunkResult, error) {
	var result *api.ChunkResult

	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		chunkCtx, cancel := context.WithTimeout(ctx, w.chunkTimeout)
		defer cancel()

		var err error
		result, err = w.client.UploadChunk(chunkCtx, mediaID, offset, chunk)
		if err != nil && errors.Is(err, common.ErrTransientNetwork) && w.monitor.Online() {
			return retry.RetryableError(err)
		}
		return err
	})
	return result, err
}
