package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/server/models"
)

type fakeReportRepo struct {
	inserted []api.Report
	updated  []api.Report
	bases    []int64
}

func (f *fakeReportRepo) Insert(_ context.Context, r *api.Report) error {
	f.inserted = append(f.inserted, *r)
	return nil
}

func (f *fakeReportRepo) Update(_ context.Context, r *api.Report, base int64) error {
	f.updated = append(f.updated, *r)
	f.bases = append(f.bases, base)
	return nil
}

func (f *fakeReportRepo) GetByID(context.Context, string) (*api.Report, error) {
	return nil, common.ErrNotFound
}

func (f *fakeReportRepo) SelectUpdated(context.Context, int64) ([]api.Report, error) {
	return nil, nil
}

type fakeMediaRepo struct {
	existing  *models.Media
	inserted  []models.Media
	insertErr error
}

func (f *fakeMediaRepo) Insert(_ context.Context, m *models.Media) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, *m)
	return nil
}

func (f *fakeMediaRepo) Update(context.Context, *models.Media, int64) error { return nil }

func (f *fakeMediaRepo) GetByID(_ context.Context, id string) (*models.Media, error) {
	if f.existing != nil && f.existing.ID == id {
		return f.existing, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeMediaRepo) SetUploadedBytes(context.Context, string, int64) error { return nil }

func (f *fakeMediaRepo) MarkComplete(context.Context, string, string, string, int64) error {
	return nil
}

func (f *fakeMediaRepo) SelectUpdated(context.Context, int64) ([]models.Media, error) {
	return nil, nil
}

func TestValidatePushItem(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		item    api.PushItem
		wantErr bool
	}{
		{
			name: "valid report create",
			item: api.PushItem{
				EntityType: api.EntityReport, EntityID: "r1", Action: api.ActionCreate,
				Report: &api.Report{ID: "r1", Title: "t", CreatedAt: now, UpdatedAt: now},
			},
		},
		{
			name:    "missing entity id",
			item:    api.PushItem{EntityType: api.EntityReport, Action: api.ActionCreate},
			wantErr: true,
		},
		{
			name: "unknown action",
			item: api.PushItem{
				EntityType: api.EntityReport, EntityID: "r1", Action: "merge",
				Report: &api.Report{ID: "r1"},
			},
			wantErr: true,
		},
		{
			name:    "payload missing",
			item:    api.PushItem{EntityType: api.EntityEntry, EntityID: "e1", Action: api.ActionCreate},
			wantErr: true,
		},
		{
			name: "payload id mismatch",
			item: api.PushItem{
				EntityType: api.EntityEntry, EntityID: "e1", Action: api.ActionCreate,
				Entry: &api.Entry{ID: "other"},
			},
			wantErr: true,
		},
		{
			name: "media without size",
			item: api.PushItem{
				EntityType: api.EntityMedia, EntityID: "m1", Action: api.ActionCreate,
				Media: &api.Media{ID: "m1", EntryID: "e1"},
			},
			wantErr: true,
		},
		{
			name:    "unknown entity type",
			item:    api.PushItem{EntityType: "widget", EntityID: "w1", Action: api.ActionCreate},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePushItem(&tc.item)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrPermanentValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestApplyReport_CreateStampsVersion(t *testing.T) {
	repo := &fakeReportRepo{}
	item := &api.PushItem{
		EntityType: api.EntityReport, EntityID: "r1", Action: api.ActionCreate,
		Report: &api.Report{ID: "r1", Title: "Bridge survey", UpdatedAt: time.Now().UTC()},
	}

	require.NoError(t, applyReport(context.Background(), repo, item, 7))

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, int64(7), repo.inserted[0].Version)
	assert.Equal(t, "Bridge survey", repo.inserted[0].Title)
}

func TestApplyReport_UpdatePassesBaseVersion(t *testing.T) {
	repo := &fakeReportRepo{}
	item := &api.PushItem{
		EntityType: api.EntityReport, EntityID: "r1", Action: api.ActionUpdate, BaseVersion: 4,
		Report: &api.Report{ID: "r1", Title: "edited", UpdatedAt: time.Now().UTC()},
	}

	require.NoError(t, applyReport(context.Background(), repo, item, 9))

	require.Len(t, repo.updated, 1)
	assert.Equal(t, int64(9), repo.updated[0].Version)
	assert.Equal(t, []int64{4}, repo.bases)
}

func TestApplyReport_DeleteSetsTombstone(t *testing.T) {
	repo := &fakeReportRepo{}
	item := &api.PushItem{
		EntityType: api.EntityReport, EntityID: "r1", Action: api.ActionDelete, BaseVersion: 2,
		Report: &api.Report{ID: "r1", UpdatedAt: time.Now().UTC()},
	}

	require.NoError(t, applyReport(context.Background(), repo, item, 3))

	require.Len(t, repo.updated, 1)
	assert.True(t, repo.updated[0].Deleted)
}

func TestApplyMedia_RepeatedCreateIsIdempotent(t *testing.T) {
	repo := &fakeMediaRepo{
		existing:  &models.Media{ID: "m1", EntryID: "e1", Size: 10},
		insertErr: common.ErrVersionConflict,
	}
	item := &api.PushItem{
		EntityType: api.EntityMedia, EntityID: "m1", Action: api.ActionCreate,
		Media: &api.Media{ID: "m1", EntryID: "e1", Size: 10},
	}

	require.NoError(t, applyMedia(context.Background(), repo, item, 5))
	assert.Empty(t, repo.inserted)
}

func TestApplyMedia_CreateConflictWithDifferentEntry(t *testing.T) {
	repo := &fakeMediaRepo{
		existing:  &models.Media{ID: "m1", EntryID: "other-entry", Size: 10},
		insertErr: common.ErrVersionConflict,
	}
	item := &api.PushItem{
		EntityType: api.EntityMedia, EntityID: "m1", Action: api.ActionCreate,
		Media: &api.Media{ID: "m1", EntryID: "e1", Size: 10},
	}

	err := applyMedia(context.Background(), repo, item, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrVersionConflict))
}
