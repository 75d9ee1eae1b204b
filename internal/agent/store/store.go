// Package store is the agent's local write path. Every mutation lands
// in SQLite together with its sync-queue item in a single transaction,
// so a crash can never leave a saved record the uploader does not know
// about.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/conflicts"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/entries"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/media"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/metadata"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/reports"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/syncqueue"
	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
	"github.com/ksolodov/fieldreporter/internal/logging"
)

// Store exposes the local persistence operations the UI and the upload
// worker share.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	policy syncqueue.RetryPolicy

	Reports   reports.Repository
	Entries   entries.Repository
	Media     media.Repository
	Queue     syncqueue.Repository
	Metadata  metadata.Repository
	Conflicts conflicts.Repository
}

func NewStore(db *sql.DB, logger logging.Logger, policy syncqueue.RetryPolicy) *Store {
	return &Store{
		db:       db,
		logger:   logger,
		policy:   policy,
		Reports:   reports.NewSQLiteRepository(db),
		Entries:   entries.NewSQLiteRepository(db),
		Media:     media.NewSQLiteRepository(db),
		Queue:     syncqueue.NewSQLiteRepository(db, policy),
		Metadata:  metadata.NewSQLiteRepository(db),
		Conflicts: conflicts.NewSQLiteRepository(db),
	}
}

// DB exposes the underlying handle for callers that need to span a
// transaction across repositories.
func (s *Store) DB() *sql.DB {
	return s.db
}

// storageErr keeps sentinel lookups intact and folds everything else
// into ErrStorage.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrConflict) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrStorage, err)
}

// SaveReport upserts a report and enqueues it for upload atomically.
func (s *Store) SaveReport(ctx context.Context, r *models.Report) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		reportRepo := reports.NewSQLiteRepository(tx)
		queueRepo := syncqueue.NewSQLiteRepository(tx, s.policy)

		action, baseVersion, err := resolveAction(func() (int64, error) {
			existing, err := reportRepo.GetByID(ctx, r.ID)
			if err != nil {
				return 0, err
			}
			return existing.RemoteVersion, nil
		})
		if err != nil {
			return err
		}

		if err := reportRepo.CreateOrUpdate(ctx, r); err != nil {
			return err
		}

		payload, err := json.Marshal(&api.PushItem{
			EntityType:  api.EntityReport,
			EntityID:    r.ID,
			Action:      action,
			BaseVersion: baseVersion,
			Report:      r.ToAPI(),
		})
		if err != nil {
			return err
		}

		_, err = queueRepo.Enqueue(ctx, string(api.EntityReport), r.ID, string(action), payload, now)
		return err
	})
	if err != nil {
		return storageErr(err)
	}

	s.logger.Debug(ctx, "report saved", "id", r.ID)
	return nil
}

// SaveEntry upserts an entry, its optional media record, and the
// matching queue items in one transaction. m may be nil for entries
// without a payload (notes).
func (s *Store) SaveEntry(ctx context.Context, e *models.Entry, m *models.Media) error {
	if m != nil && !e.Type.HasMedia() {
		return fmt.Errorf("%w: entry type %s carries no media", common.ErrPermanentValidation, e.Type)
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.CapturedAt.IsZero() {
		e.CapturedAt = now
	}
	e.UpdatedAt = now

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entryRepo := entries.NewSQLiteRepository(tx)
		mediaRepo := media.NewSQLiteRepository(tx)
		queueRepo := syncqueue.NewSQLiteRepository(tx, s.policy)

		action, baseVersion, err := resolveAction(func() (int64, error) {
			existing, err := entryRepo.GetByID(ctx, e.ID)
			if err != nil {
				return 0, err
			}
			return existing.RemoteVersion, nil
		})
		if err != nil {
			return err
		}

		if err := entryRepo.CreateOrUpdate(ctx, e); err != nil {
			return err
		}

		payload, err := json.Marshal(&api.PushItem{
			EntityType:  api.EntityEntry,
			EntityID:    e.ID,
			Action:      action,
			BaseVersion: baseVersion,
			Entry:       e.ToAPI(),
		})
		if err != nil {
			return err
		}
		if _, err := queueRepo.Enqueue(ctx, string(api.EntityEntry), e.ID, string(action), payload, now); err != nil {
			return err
		}

		if m == nil || action != api.ActionCreate {
			return nil
		}

		m.EntryID = e.ID
		m.Status = models.ProcessingPending
		m.CreatedAt = now
		m.UpdatedAt = now
		if err := mediaRepo.Create(ctx, m); err != nil {
			return err
		}

		mediaPayload, err := json.Marshal(&api.PushItem{
			EntityType: api.EntityMedia,
			EntityID:   m.ID,
			Action:     api.ActionCreate,
			Media:      m.ToAPI(),
		})
		if err != nil {
			return err
		}
		_, err = queueRepo.Enqueue(ctx, string(api.EntityMedia), m.ID, string(api.ActionCreate), mediaPayload, now)
		return err
	})
	if err != nil {
		return storageErr(err)
	}

	s.logger.Debug(ctx, "entry saved", "id", e.ID, "type", e.Type)
	return nil
}

// DeleteEntry tombstones an entry and enqueues the deletion.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	now := time.Now().UTC()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entryRepo := entries.NewSQLiteRepository(tx)
		queueRepo := syncqueue.NewSQLiteRepository(tx, s.policy)

		existing, err := entryRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := entryRepo.DeleteByID(ctx, id); err != nil {
			return err
		}

		existing.Deleted = true
		payload, err := json.Marshal(&api.PushItem{
			EntityType:  api.EntityEntry,
			EntityID:    id,
			Action:      api.ActionDelete,
			BaseVersion: existing.RemoteVersion,
			Entry:       existing.ToAPI(),
		})
		if err != nil {
			return err
		}
		_, err = queueRepo.Enqueue(ctx, string(api.EntityEntry), id, string(api.ActionDelete), payload, now)
		return err
	})
	if err != nil {
		return storageErr(err)
	}

	s.logger.Debug(ctx, "entry deleted", "id", id)
	return nil
}

// DeleteReport tombstones a report and enqueues the deletion.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	now := time.Now().UTC()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		reportRepo := reports.NewSQLiteRepository(tx)
		queueRepo := syncqueue.NewSQLiteRepository(tx, s.policy)

		existing, err := reportRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := reportRepo.DeleteByID(ctx, id); err != nil {
			return err
		}

		existing.Deleted = true
		payload, err := json.Marshal(&api.PushItem{
			EntityType:  api.EntityReport,
			EntityID:    id,
			Action:      api.ActionDelete,
			BaseVersion: existing.RemoteVersion,
			Report:      existing.ToAPI(),
		})
		if err != nil {
			return err
		}
		_, err = queueRepo.Enqueue(ctx, string(api.EntityReport), id, string(api.ActionDelete), payload, now)
		return err
	})
	if err != nil {
		return storageErr(err)
	}

	s.logger.Debug(ctx, "report deleted", "id", id)
	return nil
}

// CancelQueueItem drops a not-yet-synced item on user request. The
// local record stays as-is.
func (s *Store) CancelQueueItem(ctx context.Context, id int64) error {
	return storageErr(s.Queue.Remove(ctx, id))
}

// RetryDeadLetter puts a dead-letter item back in line with a fresh
// retry budget.
func (s *Store) RetryDeadLetter(ctx context.Context, id int64) error {
	return storageErr(s.Queue.Requeue(ctx, id))
}

// resolveAction decides create vs update from the record's existence
// and reports the version the change is based on.
func resolveAction(lookup func() (int64, error)) (api.Action, int64, error) {
	version, err := lookup()
	if errors.Is(err, common.ErrNotFound) {
		return api.ActionCreate, 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return api.ActionUpdate, version, nil
}
