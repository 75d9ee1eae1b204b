package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
	"github.com/ksolodov/fieldreporter/internal/logging"
	"github.com/ksolodov/fieldreporter/internal/server/models"
	"github.com/ksolodov/fieldreporter/internal/server/repositories/entries"
	"github.com/ksolodov/fieldreporter/internal/server/repositories/media"
	"github.com/ksolodov/fieldreporter/internal/server/repositories/reports"
	"github.com/ksolodov/fieldreporter/internal/server/repositories/versions"
)

// SyncService applies pushed mutations and serves incremental pulls.
//
// Every accepted mutation is stamped with the next global version
// inside one transaction, so a batch is all-or-nothing and a base
// version mismatch on any item rejects the whole push with
// common.ErrVersionConflict.
type SyncService struct {
	db     *sql.DB
	logger logging.Logger
}

func NewSyncService(db *sql.DB, logger logging.Logger) *SyncService {
	return &SyncService{db: db, logger: logger}
}

// Push applies the batch and returns the server-assigned version per
// item, in input order.
func (s *SyncService) Push(ctx context.Context, deviceID string, items []api.PushItem) ([]api.PushResult, error) {
	if len(items) == 0 {
		return []api.PushResult{}, nil
	}
	for i := range items {
		if err := validatePushItem(&items[i]); err != nil {
			return nil, err
		}
	}

	results := make([]api.PushResult, 0, len(items))

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		versionRepo := versions.NewPostgresRepository(tx)
		reportRepo := reports.NewPostgresRepository(tx)
		entryRepo := entries.NewPostgresRepository(tx)
		mediaRepo := media.NewPostgresRepository(tx)

		for i := range items {
			item := &items[i]

			v, err := versionRepo.Next(ctx)
			if err != nil {
				return err
			}

			switch item.EntityType {
			case api.EntityReport:
				if err := applyReport(ctx, reportRepo, item, v); err != nil {
					return err
				}
			case api.EntityEntry:
				if err := applyEntry(ctx, entryRepo, item, v); err != nil {
					return err
				}
			case api.EntityMedia:
				if err := applyMedia(ctx, mediaRepo, item, v); err != nil {
					return err
				}
			}

			results = append(results, api.PushResult{EntityID: item.EntityID, Version: v})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "push applied", "device_id", deviceID, "items", len(items))
	return results, nil
}

// Pull returns every change newer than sinceVersion together with the
// current high-water mark.
func (s *SyncService) Pull(ctx context.Context, sinceVersion int64) (*api.PullResponse, error) {
	resp := &api.PullResponse{
		Reports: []api.Report{},
		Entries: []api.Entry{},
		Media:   []api.Media{},
	}

	err := dbx.WithTx(ctx, s.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx dbx.DBTX) error {
		current, err := versions.NewPostgresRepository(tx).Current(ctx)
		if err != nil {
			return err
		}
		resp.Version = current

		if current <= sinceVersion {
			return nil
		}

		reportRows, err := reports.NewPostgresRepository(tx).SelectUpdated(ctx, sinceVersion)
		if err != nil {
			return err
		}
		resp.Reports = append(resp.Reports, reportRows...)

		entryRows, err := entries.NewPostgresRepository(tx).SelectUpdated(ctx, sinceVersion)
		if err != nil {
			return err
		}
		resp.Entries = append(resp.Entries, entryRows...)

		mediaRows, err := media.NewPostgresRepository(tx).SelectUpdated(ctx, sinceVersion)
		if err != nil {
			return err
		}
		for i := range mediaRows {
			resp.Media = append(resp.Media, mediaRows[i].ToAPI())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func validatePushItem(item *api.PushItem) error {
	if item.EntityID == "" {
		return fmt.Errorf("%w: entity id is required", common.ErrPermanentValidation)
	}
	switch item.Action {
	case api.ActionCreate, api.ActionUpdate, api.ActionDelete:
	default:
		return fmt.Errorf("%w: unknown action %q", common.ErrPermanentValidation, item.Action)
	}

	switch item.EntityType {
	case api.EntityReport:
		if item.Report == nil || item.Report.ID != item.EntityID {
			return fmt.Errorf("%w: report payload missing or mismatched", common.ErrPermanentValidation)
		}
	case api.EntityEntry:
		if item.Entry == nil || item.Entry.ID != item.EntityID {
			return fmt.Errorf("%w: entry payload missing or mismatched", common.ErrPermanentValidation)
		}
	case api.EntityMedia:
		if item.Media == nil || item.Media.ID != item.EntityID {
			return fmt.Errorf("%w: media payload missing or mismatched", common.ErrPermanentValidation)
		}
		if item.Media.Size <= 0 {
			return fmt.Errorf("%w: media size must be positive", common.ErrPermanentValidation)
		}
	default:
		return fmt.Errorf("%w: unknown entity type %q", common.ErrPermanentValidation, item.EntityType)
	}
	return nil
}

func applyReport(ctx context.Context, repo reports.Repository, item *api.PushItem, version int64) error {
	rep := *item.Report
	rep.Version = version
	if item.Action == api.ActionDelete {
		rep.Deleted = true
	}
	if rep.UpdatedAt.IsZero() {
		rep.UpdatedAt = time.Now().UTC()
	}

	if item.Action == api.ActionCreate {
		return repo.Insert(ctx, &rep)
	}
	return repo.Update(ctx, &rep, item.BaseVersion)
}

func applyEntry(ctx context.Context, repo entries.Repository, item *api.PushItem, version int64) error {
	e := *item.Entry
	e.Version = version
	if item.Action == api.ActionDelete {
		e.Deleted = true
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}

	if item.Action == api.ActionCreate {
		return repo.Insert(ctx, &e)
	}
	return repo.Update(ctx, &e, item.BaseVersion)
}

func applyMedia(ctx context.Context, repo media.Repository, item *api.PushItem, version int64) error {
	m := models.MediaFromAPI(item.Media)
	m.Version = version
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	if item.Action == api.ActionCreate {
		err := repo.Insert(ctx, m)
		if errors.Is(err, common.ErrVersionConflict) {
			// A resumed upload re-pushes its metadata. The same record
			// announced twice is not a conflict.
			existing, getErr := repo.GetByID(ctx, m.ID)
			if getErr == nil && existing.EntryID == m.EntryID {
				return nil
			}
		}
		return err
	}
	if item.Action == api.ActionDelete {
		m.Deleted = true
	}
	return repo.Update(ctx, m, item.BaseVersion)
}
