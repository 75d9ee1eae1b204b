// Package syncer pulls remote changes and reconciles them with local
// pending edits. Everything a pull applies lands in one transaction
// together with the new high-water mark, so an interrupted pull is
// simply retried from the old version.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/agent/remote"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/conflicts"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/entries"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/media"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/metadata"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/reports"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/syncqueue"
	"github.com/ksolodov/fieldreporter/internal/agent/resolver"
	"github.com/ksolodov/fieldreporter/internal/agent/store"
	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
	"github.com/ksolodov/fieldreporter/internal/logging"
)

type Syncer struct {
	store  *store.Store
	client remote.Client
	logger logging.Logger
}

func New(s *store.Store, client remote.Client, logger logging.Logger) *Syncer {
	return &Syncer{store: s, client: client, logger: logger}
}

// Pull fetches everything newer than the stored high-water mark,
// resolves clashes with local pending edits and applies the outcome.
// A delete racing a newer edit is not applied: both snapshots are
// parked and the returned conflicts wait for ResolveConflict.
func (s *Syncer) Pull(ctx context.Context) ([]resolver.Conflict, error) {
	since, err := s.lastVersion(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Pull(ctx, since)
	if err != nil {
		return nil, err
	}
	if resp.Version <= since &&
		len(resp.Reports) == 0 && len(resp.Entries) == 0 && len(resp.Media) == 0 {
		return nil, nil
	}

	var found []resolver.Conflict
	now := time.Now().UTC()

	err = dbx.WithTx(ctx, s.store.DB(), nil, func(ctx context.Context, tx dbx.DBTX) error {
		reportRepo := reports.NewSQLiteRepository(tx)
		entryRepo := entries.NewSQLiteRepository(tx)
		mediaRepo := media.NewSQLiteRepository(tx)
		queueRepo := syncqueue.NewSQLiteRepository(tx, syncqueue.RetryPolicy{})
		metaRepo := metadata.NewSQLiteRepository(tx)
		conflictRepo := conflicts.NewSQLiteRepository(tx)

		for i := range resp.Reports {
			c, err := s.applyReport(ctx, reportRepo, queueRepo, conflictRepo, &resp.Reports[i], now)
			if err != nil {
				return err
			}
			if c != nil {
				found = append(found, *c)
			}
		}

		for i := range resp.Entries {
			c, err := s.applyEntry(ctx, entryRepo, queueRepo, conflictRepo, &resp.Entries[i], now)
			if err != nil {
				return err
			}
			if c != nil {
				found = append(found, *c)
			}
		}

		for i := range resp.Media {
			if err := applyMedia(ctx, mediaRepo, &resp.Media[i]); err != nil {
				return err
			}
		}

		return metaRepo.Set(ctx, metadata.KeyLastSyncVersion,
			[]byte(strconv.FormatInt(resp.Version, 10)))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: applying pull: %v", common.ErrStorage, err)
	}

	s.logger.Info(ctx, "pull applied",
		"since", since, "version", resp.Version,
		"reports", len(resp.Reports), "entries", len(resp.Entries),
		"media", len(resp.Media), "conflicts", len(found))
	return found, nil
}

func (s *Syncer) lastVersion(ctx context.Context) (int64, error) {
	raw, err := s.store.Metadata.Get(ctx, metadata.KeyLastSyncVersion)
	if err != nil {
		return 0, fmt.Errorf("%w: reading sync version: %v", common.ErrStorage, err)
	}
	if raw == nil {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt sync version %q", common.ErrStorage, raw)
	}
	return v, nil
}

// applyReport reconciles one remote report against the local copy.
// When the local pending edit survives, its queued push is replaced
// with one based on the fresh remote version. A clash with no automatic
// winner is parked instead of applied.
func (s *Syncer) applyReport(ctx context.Context, repo reports.Repository, queue syncqueue.Repository, parked conflicts.Repository, in *api.Report, now time.Time) (*resolver.Conflict, error) {
	remoteCopy := models.ReportFromAPI(in)

	local, err := repo.GetByID(ctx, in.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if local != nil && !local.SyncPending {
		local = nil // no local divergence; remote wins trivially
	}

	winner, conflict := resolver.ResolveReport(local, remoteCopy)
	if conflict != nil {
		return conflict, parkConflict(ctx, parked, queue, conflict, local, remoteCopy, now)
	}
	if winner == local && local != nil {
		// keep the local edit, rebased onto the remote version
		winner.RemoteVersion = remoteCopy.RemoteVersion
		if err := repo.ApplyRemote(ctx, winner); err != nil {
			return nil, err
		}
		return conflict, s.reenqueueReport(ctx, repo, queue, winner, now)
	}

	if err := queue.RemoveByEntity(ctx, string(api.EntityReport), in.ID); err != nil {
		return nil, err
	}
	return conflict, repo.ApplyRemote(ctx, winner)
}

func (s *Syncer) applyEntry(ctx context.Context, repo entries.Repository, queue syncqueue.Repository, parked conflicts.Repository, in *api.Entry, now time.Time) (*resolver.Conflict, error) {
	remoteCopy := models.EntryFromAPI(in)

	local, err := repo.GetByID(ctx, in.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if local != nil && !local.SyncPending {
		local = nil
	}

	winner, conflict := resolver.ResolveEntry(local, remoteCopy)
	if conflict != nil {
		return conflict, parkConflict(ctx, parked, queue, conflict, local, remoteCopy, now)
	}
	if winner == local && local != nil {
		winner.RemoteVersion = remoteCopy.RemoteVersion
		if err := repo.ApplyRemote(ctx, winner); err != nil {
			return nil, err
		}
		return conflict, s.reenqueueEntry(ctx, repo, queue, winner, now)
	}

	if err := queue.RemoveByEntity(ctx, string(api.EntityEntry), in.ID); err != nil {
		return nil, err
	}
	return conflict, repo.ApplyRemote(ctx, winner)
}

// applyMedia records media that other devices uploaded. A record we
// already track locally is left alone; its lifecycle belongs to the
// upload worker.
func applyMedia(ctx context.Context, repo media.Repository, in *api.Media) error {
	_, err := repo.GetByID(ctx, in.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	return repo.Create(ctx, &models.Media{
		ID:         in.ID,
		EntryID:    in.EntryID,
		Type:       models.EntryType(in.Type),
		RemoteURL:  in.RemoteURL,
		Size:       in.Size,
		DurationMS: in.DurationMS,
		Status:     models.ProcessingComplete,
		Progress:   100,
		CreatedAt:  in.CreatedAt,
		UpdatedAt:  in.UpdatedAt,
	})
}

// parkConflict stores both snapshots of an undecided clash and
// withdraws the entity's queued pushes so nothing races the decision.
// The local record is left exactly as it was.
func parkConflict(ctx context.Context, parked conflicts.Repository, queue syncqueue.Repository, c *resolver.Conflict, local, remote any, now time.Time) error {
	localRaw, err := json.Marshal(local)
	if err != nil {
		return err
	}
	remoteRaw, err := json.Marshal(remote)
	if err != nil {
		return err
	}
	if err := queue.RemoveByEntity(ctx, string(c.EntityType), c.EntityID); err != nil {
		return err
	}
	return parked.Save(ctx, &models.ConflictRecord{
		EntityType:     string(c.EntityType),
		EntityID:       c.EntityID,
		Reason:         c.Reason,
		LocalSnapshot:  localRaw,
		RemoteSnapshot: remoteRaw,
		CreatedAt:      now,
	})
}

// ResolveConflict applies the user's decision for a parked clash.
// Keeping local restores the local snapshot rebased onto the remote
// version and queues it for push; keeping remote applies the server
// copy. Either way the parked record is gone afterwards.
func (s *Syncer) ResolveConflict(ctx context.Context, id int64, keepLocal bool) error {
	rec, err := s.store.Conflicts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	err = dbx.WithTx(ctx, s.store.DB(), nil, func(ctx context.Context, tx dbx.DBTX) error {
		conflictRepo := conflicts.NewSQLiteRepository(tx)
		queueRepo := syncqueue.NewSQLiteRepository(tx, syncqueue.RetryPolicy{})

		switch rec.EntityType {
		case string(api.EntityReport):
			var local, remoteCopy models.Report
			if err := json.Unmarshal(rec.LocalSnapshot, &local); err != nil {
				return err
			}
			if err := json.Unmarshal(rec.RemoteSnapshot, &remoteCopy); err != nil {
				return err
			}
			repo := reports.NewSQLiteRepository(tx)
			if keepLocal {
				local.RemoteVersion = remoteCopy.RemoteVersion
				if err := repo.ApplyRemote(ctx, &local); err != nil {
					return err
				}
				if err := s.reenqueueReport(ctx, repo, queueRepo, &local, now); err != nil {
					return err
				}
			} else if err := repo.ApplyRemote(ctx, &remoteCopy); err != nil {
				return err
			}

		case string(api.EntityEntry):
			var local, remoteCopy models.Entry
			if err := json.Unmarshal(rec.LocalSnapshot, &local); err != nil {
				return err
			}
			if err := json.Unmarshal(rec.RemoteSnapshot, &remoteCopy); err != nil {
				return err
			}
			repo := entries.NewSQLiteRepository(tx)
			if keepLocal {
				local.RemoteVersion = remoteCopy.RemoteVersion
				if err := repo.ApplyRemote(ctx, &local); err != nil {
					return err
				}
				if err := s.reenqueueEntry(ctx, repo, queueRepo, &local, now); err != nil {
					return err
				}
			} else if err := repo.ApplyRemote(ctx, &remoteCopy); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown conflict entity type %q", rec.EntityType)
		}

		return conflictRepo.Remove(ctx, rec.ID)
	})
	if err != nil {
		return fmt.Errorf("%w: resolving conflict %d: %v", common.ErrStorage, id, err)
	}

	kept := "remote"
	if keepLocal {
		kept = "local"
	}
	s.logger.Info(ctx, "conflict resolved",
		"conflict_id", id, "entity", rec.EntityType, "entity_id", rec.EntityID, "kept", kept)
	return nil
}

// reenqueueReport replaces the report's queued pushes with a single
// update carrying the rebased version.
func (s *Syncer) reenqueueReport(ctx context.Context, repo reports.Repository, queue syncqueue.Repository, r *models.Report, now time.Time) error {
	if err := queue.RemoveByEntity(ctx, string(api.EntityReport), r.ID); err != nil {
		return err
	}
	if err := repo.CreateOrUpdate(ctx, r); err != nil {
		return err
	}
	action := api.ActionUpdate
	if r.Deleted {
		action = api.ActionDelete
	}
	payload, err := json.Marshal(&api.PushItem{
		EntityType:  api.EntityReport,
		EntityID:    r.ID,
		Action:      action,
		BaseVersion: r.RemoteVersion,
		Report:      r.ToAPI(),
	})
	if err != nil {
		return err
	}
	_, err = queue.Enqueue(ctx, string(api.EntityReport), r.ID, string(action), payload, now)
	return err
}

func (s *Syncer) reenqueueEntry(ctx context.Context, repo entries.Repository, queue syncqueue.Repository, e *models.Entry, now time.Time) error {
	if err := queue.RemoveByEntity(ctx, string(api.EntityEntry), e.ID); err != nil {
		return err
	}
	if err := repo.CreateOrUpdate(ctx, e); err != nil {
		return err
	}
	action := api.ActionUpdate
	if e.Deleted {
		action = api.ActionDelete
	}
	payload, err := json.Marshal(&api.PushItem{
		EntityType:  api.EntityEntry,
		EntityID:    e.ID,
		Action:      action,
		BaseVersion: e.RemoteVersion,
		Entry:       e.ToAPI(),
	})
	if err != nil {
		return err
	}
	_, err = queue.Enqueue(ctx, string(api.EntityEntry), e.ID, string(action), payload, now)
	return err
}
