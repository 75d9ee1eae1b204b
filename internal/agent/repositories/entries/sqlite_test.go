package entries

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE entries (
  id TEXT PRIMARY KEY,
  report_id TEXT NOT NULL,
  type TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  latitude REAL,
  longitude REAL,
  captured_at TIMESTAMP NOT NULL,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  sync_pending INTEGER NOT NULL DEFAULT 1,
  remote_version INTEGER NOT NULL DEFAULT 0,
  deleted INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)
	return db
}

func newEntry(id, reportID string, capturedAt time.Time) *models.Entry {
	return &models.Entry{
		ID:         id,
		ReportID:   reportID,
		Type:       models.EntryTypeNote,
		Content:    "soil sample near the east fence",
		CapturedAt: capturedAt,
		CreatedAt:  capturedAt,
		UpdatedAt:  capturedAt,
	}
}

func TestCreateOrUpdate_InsertThenGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	lat, lon := 56.95, 24.11
	e := newEntry("e1", "r1", now)
	e.Type = models.EntryTypePhoto
	e.Latitude = &lat
	e.Longitude = &lon

	require.NoError(t, r.CreateOrUpdate(ctx, e))

	got, err := r.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ReportID)
	assert.Equal(t, models.EntryTypePhoto, got.Type)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, lat, *got.Latitude, 1e-9)
	assert.True(t, got.SyncPending, "a fresh local write must be pending")
	assert.False(t, got.Deleted)
}

func TestCreateOrUpdate_UpdateReflagsPending(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	e := newEntry("e1", "r1", now)
	require.NoError(t, r.CreateOrUpdate(ctx, e))
	require.NoError(t, r.MarkSynced(ctx, "e1", 7))

	e.Content = "corrected reading"
	e.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, r.CreateOrUpdate(ctx, e))

	got, err := r.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "corrected reading", got.Content)
	assert.Equal(t, now.Add(time.Hour), got.UpdatedAt.UTC())
	assert.True(t, got.SyncPending)
	assert.Equal(t, int64(7), got.RemoteVersion, "update must not clobber the synced version")
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetByReport_OrdersByCaptureTimeAndSkipsTombstones(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// inserted out of capture order on purpose
	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("e2", "r1", base.Add(2*time.Minute))))
	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("e1", "r1", base.Add(time.Minute))))
	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("e3", "r1", base.Add(3*time.Minute))))
	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("x1", "r2", base)))

	require.NoError(t, r.DeleteByID(ctx, "e3"))

	got, err := r.GetByReport(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, "e2", got[1].ID)
}

func TestDeleteByID_TombstonesAndReflagsPending(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("e1", "r1", now)))
	require.NoError(t, r.MarkSynced(ctx, "e1", 3))

	require.NoError(t, r.DeleteByID(ctx, "e1"))

	got, err := r.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.True(t, got.SyncPending, "the tombstone must propagate")

	// deleting twice is a no-op reported as not found
	assert.ErrorIs(t, r.DeleteByID(ctx, "e1"), common.ErrNotFound)
	assert.ErrorIs(t, r.DeleteByID(ctx, "missing"), common.ErrNotFound)
}

func TestGetAllPending_IncludesTombstones(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("e1", "r1", now)))
	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("e2", "r1", now.Add(time.Minute))))
	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("e3", "r1", now.Add(2*time.Minute))))
	require.NoError(t, r.MarkSynced(ctx, "e2", 1))
	require.NoError(t, r.DeleteByID(ctx, "e3"))

	pending, err := r.GetAllPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "e1", pending[0].ID)
	assert.Equal(t, "e3", pending[1].ID)
	assert.True(t, pending[1].Deleted)
}

func TestMarkSynced(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("e1", "r1", now)))
	require.NoError(t, r.MarkSynced(ctx, "e1", 42))

	got, err := r.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, got.SyncPending)
	assert.Equal(t, int64(42), got.RemoteVersion)

	assert.ErrorIs(t, r.MarkSynced(ctx, "missing", 1), common.ErrNotFound)
}

func TestApplyRemote_DoesNotFlagPending(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	e := newEntry("e1", "r1", now)
	e.Content = "server copy"
	e.RemoteVersion = 9
	require.NoError(t, r.ApplyRemote(ctx, e))

	got, err := r.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "server copy", got.Content)
	assert.Equal(t, int64(9), got.RemoteVersion)
	assert.False(t, got.SyncPending, "mirrored server state is already synced")

	// overwriting a local pending row clears the flag too
	local := newEntry("e2", "r1", now)
	require.NoError(t, r.CreateOrUpdate(ctx, local))
	local.Content = "resolved"
	local.RemoteVersion = 10
	require.NoError(t, r.ApplyRemote(ctx, local))

	got, err = r.GetByID(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, "resolved", got.Content)
	assert.Equal(t, int64(10), got.RemoteVersion)
	assert.False(t, got.SyncPending)
}
