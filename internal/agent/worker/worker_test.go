package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/agent/repositories/syncqueue"
	"github.com/ksolodov/fieldreporter/internal/agent/store"
	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	policy := syncqueue.RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, MaxRetries: 3}
	return store.NewStore(db, testLogger(), policy)
}

type fakeMonitor struct {
	mu     sync.Mutex
	online bool
	ch     chan bool
}

func newFakeMonitor(online bool) *fakeMonitor {
	return &fakeMonitor{online: online, ch: make(chan bool, 1)}
}

func (m *fakeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *fakeMonitor) Subscribe() <-chan bool { return m.ch }

func (m *fakeMonitor) set(online bool) {
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()
}

// fakeClient scripts the server side through optional hooks and records
// everything the worker sends.
type fakeClient struct {
	mu           sync.Mutex
	pushed       []api.PushItem
	chunkOffsets []int64
	chunkSizes   []int

	pushFn   func(items []api.PushItem) ([]api.PushResult, error)
	uploadFn func(call int, offset int64, chunk []byte) (*api.ChunkResult, error)

	completeURL string
	completeErr error
}

func (c *fakeClient) Ping(context.Context) error { return nil }

func (c *fakeClient) Register(context.Context, string) (*api.RegisterResponse, error) {
	return &api.RegisterResponse{}, nil
}

func (c *fakeClient) Login(context.Context, string) (*api.LoginResponse, error) {
	return &api.LoginResponse{}, nil
}

func (c *fakeClient) Push(_ context.Context, items []api.PushItem) ([]api.PushResult, error) {
	c.mu.Lock()
	c.pushed = append(c.pushed, items...)
	fn := c.pushFn
	c.mu.Unlock()

	if fn != nil {
		return fn(items)
	}
	results := make([]api.PushResult, 0, len(items))
	for _, it := range items {
		results = append(results, api.PushResult{EntityID: it.EntityID, Version: 1})
	}
	return results, nil
}

func (c *fakeClient) Pull(context.Context, int64) (*api.PullResponse, error) {
	return &api.PullResponse{}, nil
}

func (c *fakeClient) UploadChunk(_ context.Context, mediaID string, offset int64, chunk []byte) (*api.ChunkResult, error) {
	c.mu.Lock()
	call := len(c.chunkOffsets)
	c.chunkOffsets = append(c.chunkOffsets, offset)
	c.chunkSizes = append(c.chunkSizes, len(chunk))
	fn := c.uploadFn
	c.mu.Unlock()

	if fn != nil {
		return fn(call, offset, chunk)
	}
	return &api.ChunkResult{MediaID: mediaID, NextOffset: offset + int64(len(chunk))}, nil
}

func (c *fakeClient) CompleteMedia(_ context.Context, mediaID string) (*api.ChunkResult, error) {
	if c.completeErr != nil {
		return nil, c.completeErr
	}
	return &api.ChunkResult{MediaID: mediaID, Complete: true, RemoteURL: c.completeURL}, nil
}

func (c *fakeClient) pushCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushed)
}

func (c *fakeClient) offsets() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.chunkOffsets))
	copy(out, c.chunkOffsets)
	return out
}

func newWorker(s *store.Store, c *fakeClient, m *fakeMonitor) *Worker {
	return New(s, c, m, testLogger(), Options{ChunkSize: 4, ChunkTimeout: time.Second, DrainInterval: time.Minute})
}

func writeMediaFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestProcessQueue_DrainsEntrySavedOffline(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeNote, Content: "captured offline"}
	require.NoError(t, s.SaveEntry(ctx, e, nil))

	w.ProcessQueue(ctx)

	n, err := s.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.Entries.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, got.SyncPending)
	assert.Equal(t, int64(1), got.RemoteVersion)
	assert.Equal(t, 1, client.pushCount())
}

func TestProcessQueue_OfflineIsANoop(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{}
	monitor := newFakeMonitor(false)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeNote}
	require.NoError(t, s.SaveEntry(ctx, e, nil))

	w.ProcessQueue(ctx)

	n, err := s.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "nothing leaves the queue while offline")
	assert.Zero(t, client.pushCount())
}

func TestProcessQueue_ReentrantCallIsANoop(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeNote}
	require.NoError(t, s.SaveEntry(ctx, e, nil))

	w.running.Store(true)
	w.ProcessQueue(ctx)

	n, err := s.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a second drain must not start while one runs")

	w.running.Store(false)
	w.ProcessQueue(ctx)
	n, err = s.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessQueue_TransientFailureBacksOff(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{
		pushFn: func([]api.PushItem) ([]api.PushResult, error) {
			return nil, fmt.Errorf("%w: connection reset", common.ErrTransientNetwork)
		},
	}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeNote}
	require.NoError(t, s.SaveEntry(ctx, e, nil))

	w.ProcessQueue(ctx)

	// still queued, one retry burned, not yet eligible again
	n, err := s.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	item, err := s.Queue.DequeueNext(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, item, "the item must back off before the next attempt")

	item, err = s.Queue.DequeueNext(ctx, time.Now().UTC().Add(2*time.Second))
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 1, item.RetryCount)
	assert.Contains(t, item.LastError, "connection reset")
}

func TestProcessQueue_PermanentFailureDeadLetters(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{
		pushFn: func([]api.PushItem) ([]api.PushResult, error) {
			return nil, fmt.Errorf("%w: entry type is unknown", common.ErrPermanentValidation)
		},
	}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeNote}
	require.NoError(t, s.SaveEntry(ctx, e, nil))

	w.ProcessQueue(ctx)

	dls, err := s.Queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Contains(t, dls[0].LastError, "entry type is unknown")
	assert.Equal(t, 1, client.pushCount(), "no automatic retry for a permanent rejection")
}

func TestProcessQueue_VersionConflictInvokesMergeHook(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{
		pushFn: func([]api.PushItem) ([]api.PushResult, error) {
			return nil, fmt.Errorf("%w: base version 0 is stale", common.ErrVersionConflict)
		},
	}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	var hooked []string
	w.OnConflict = func(_ context.Context, item *models.SyncQueueItem) {
		hooked = append(hooked, item.EntityID)
	}

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeNote}
	require.NoError(t, s.SaveEntry(ctx, e, nil))

	w.ProcessQueue(ctx)

	assert.Equal(t, []string{e.ID}, hooked)
	n, err := s.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the stale item is dropped in favour of the merge")
}

func TestUploadMedia_ChunksWholeFile(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{completeURL: "s3://bucket/m1"}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor) // chunk size 4
	ctx := context.Background()

	content := []byte("0123456789") // 10 bytes -> chunks of 4, 4, 2
	path := writeMediaFile(t, content)

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeVideo}
	m := &models.Media{ID: uuid.NewString(), Type: models.EntryTypeVideo, LocalPath: path, Size: int64(len(content))}
	require.NoError(t, s.SaveEntry(ctx, e, m))

	w.ProcessQueue(ctx)

	assert.Equal(t, []int64{0, 4, 8}, client.offsets())

	got, err := s.Media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingComplete, got.Status)
	assert.Equal(t, "s3://bucket/m1", got.RemoteURL)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, int64(len(content)), got.UploadedBytes)

	n, err := s.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadMedia_PausesOfflineAndResumesAtNextChunk(t *testing.T) {
	s := setupStore(t)
	monitor := newFakeMonitor(true)
	client := &fakeClient{completeURL: "s3://bucket/m1"}
	client.uploadFn = func(call int, offset int64, chunk []byte) (*api.ChunkResult, error) {
		if call == 1 {
			// the link drops right after this chunk is acknowledged
			monitor.set(false)
		}
		return &api.ChunkResult{NextOffset: offset + int64(len(chunk))}, nil
	}
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	content := []byte("abcdefghijkl") // 12 bytes -> 3 chunks of 4
	path := writeMediaFile(t, content)

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeVideo}
	m := &models.Media{ID: uuid.NewString(), Type: models.EntryTypeVideo, LocalPath: path, Size: int64(len(content))}
	require.NoError(t, s.SaveEntry(ctx, e, m))

	w.ProcessQueue(ctx)

	// paused after the second chunk; progress persisted, no retry burned
	got, err := s.Media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingUploading, got.Status)
	assert.Equal(t, int64(8), got.UploadedBytes)

	item, err := s.Queue.DequeueNext(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Zero(t, item.RetryCount, "a pause is not a failure")

	// back online: only the remaining chunk goes out
	monitor.set(true)
	w.ProcessQueue(ctx)

	assert.Equal(t, []int64{0, 4, 8}, client.offsets())

	got, err = s.Media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingComplete, got.Status)
}

func TestUploadMedia_AdoptsServerOffsetOnMismatch(t *testing.T) {
	s := setupStore(t)
	monitor := newFakeMonitor(true)
	client := &fakeClient{completeURL: "s3://bucket/m1"}
	client.uploadFn = func(call int, offset int64, chunk []byte) (*api.ChunkResult, error) {
		if call == 0 {
			// server already has the first chunk from a previous run
			return &api.ChunkResult{NextOffset: 4}, fmt.Errorf("%w: server expects offset 4", common.ErrVersionConflict)
		}
		return &api.ChunkResult{NextOffset: offset + int64(len(chunk))}, nil
	}
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	content := []byte("abcdefgh") // 8 bytes -> 2 chunks
	path := writeMediaFile(t, content)

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypePhoto}
	m := &models.Media{ID: uuid.NewString(), Type: models.EntryTypePhoto, LocalPath: path, Size: int64(len(content))}
	require.NoError(t, s.SaveEntry(ctx, e, m))

	w.ProcessQueue(ctx)

	assert.Equal(t, []int64{0, 4}, client.offsets())

	got, err := s.Media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingComplete, got.Status)
}

func TestUploadMedia_PermanentChunkRejectionFailsMedia(t *testing.T) {
	s := setupStore(t)
	monitor := newFakeMonitor(true)
	client := &fakeClient{}
	client.uploadFn = func(int, int64, []byte) (*api.ChunkResult, error) {
		return nil, fmt.Errorf("%w: payload rejected", common.ErrPermanentValidation)
	}
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	content := []byte("abcd")
	path := writeMediaFile(t, content)

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypePhoto}
	m := &models.Media{ID: uuid.NewString(), Type: models.EntryTypePhoto, LocalPath: path, Size: int64(len(content))}
	require.NoError(t, s.SaveEntry(ctx, e, m))

	w.ProcessQueue(ctx)

	dls, err := s.Queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dls, 1)

	got, err := s.Media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, got.Status, "a dead-lettered upload must not read as in progress")
}

func TestUploadMedia_ExhaustedRetriesFailMedia(t *testing.T) {
	s := setupStore(t) // MaxRetries=3
	monitor := newFakeMonitor(true)
	client := &fakeClient{}
	client.uploadFn = func(int, int64, []byte) (*api.ChunkResult, error) {
		return nil, fmt.Errorf("%w: connection reset", common.ErrTransientNetwork)
	}
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	content := []byte("abcd")
	path := writeMediaFile(t, content)

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypePhoto}
	m := &models.Media{ID: uuid.NewString(), Type: models.EntryTypePhoto, LocalPath: path, Size: int64(len(content))}
	require.NoError(t, s.SaveEntry(ctx, e, m))

	// first drain burns one retry and leaves the media uploading
	w.ProcessQueue(ctx)

	got, err := s.Media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingUploading, got.Status)

	// second failure recorded directly; the third, through the worker,
	// spends the last retry and must flag the media
	future := time.Now().UTC().Add(time.Hour)
	item, err := s.Queue.DequeueNext(ctx, future)
	require.NoError(t, err)
	require.NotNil(t, item)
	dead, err := s.Queue.Nack(ctx, item.ID, "connection reset", time.Now().UTC())
	require.NoError(t, err)
	require.False(t, dead)

	item, err = s.Queue.DequeueNext(ctx, future)
	require.NoError(t, err)
	require.NotNil(t, item)
	w.settle(ctx, item, fmt.Errorf("%w: connection reset", common.ErrTransientNetwork))

	dls, err := s.Queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dls, 1)

	got, err = s.Media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, got.Status)

	// a manual retry re-enters uploading through the normal path
	require.NoError(t, s.Queue.Requeue(ctx, dls[0].ID))
	client.uploadFn = nil
	client.completeURL = "s3://bucket/m1"
	w.ProcessQueue(ctx)

	got, err = s.Media.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingComplete, got.Status)
}

func TestProcessQueue_MixedBatchDeadLettersOnlyTheRejected(t *testing.T) {
	s := setupStore(t)
	rejected := uuid.NewString()
	client := &fakeClient{
		pushFn: func(items []api.PushItem) ([]api.PushResult, error) {
			if items[0].EntityID == rejected {
				return nil, fmt.Errorf("%w: content exceeds limit", common.ErrPermanentValidation)
			}
			results := make([]api.PushResult, 0, len(items))
			for _, it := range items {
				results = append(results, api.PushResult{EntityID: it.EntityID, Version: 1})
			}
			return results, nil
		},
	}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	reportID := uuid.NewString()
	e1 := &models.Entry{ID: uuid.NewString(), ReportID: reportID, Type: models.EntryTypeNote, Content: "first"}
	e2 := &models.Entry{ID: uuid.NewString(), ReportID: reportID, Type: models.EntryTypeNote, Content: "second"}
	e3 := &models.Entry{ID: rejected, ReportID: reportID, Type: models.EntryTypeNote, Content: "third"}
	require.NoError(t, s.SaveEntry(ctx, e1, nil))
	require.NoError(t, s.SaveEntry(ctx, e2, nil))
	require.NoError(t, s.SaveEntry(ctx, e3, nil))

	w.ProcessQueue(ctx)

	n, err := s.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "one rejection must not block the rest of the drain")

	dls, err := s.Queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Equal(t, rejected, dls[0].EntityID)

	for _, id := range []string{e1.ID, e2.ID} {
		got, gerr := s.Entries.GetByID(ctx, id)
		require.NoError(t, gerr)
		assert.False(t, got.SyncPending)
		assert.Equal(t, int64(1), got.RemoteVersion)
	}
}

func TestRun_WakeTriggersDrain(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeNote}
	require.NoError(t, s.SaveEntry(ctx, e, nil))

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.Wake()

	require.Eventually(t, func() bool {
		n, err := s.Queue.PendingCount(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_OnlineTransitionTriggersDrain(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{}
	monitor := newFakeMonitor(false)
	w := newWorker(s, client, monitor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypeNote}
	require.NoError(t, s.SaveEntry(ctx, e, nil))

	go w.Run(ctx)

	monitor.set(true)
	monitor.ch <- true

	require.Eventually(t, func() bool {
		n, err := s.Queue.PendingCount(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSettle_UnknownEntityTypeDeadLetters(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	_, err := s.Queue.Enqueue(ctx, "gadget", "g1", "create", []byte(`{"entity_type":"gadget","entity_id":"g1"}`), time.Now().UTC())
	require.NoError(t, err)

	w.ProcessQueue(ctx)

	dls, derr := s.Queue.DeadLetters(ctx)
	require.NoError(t, derr)
	require.Len(t, dls, 1)
	assert.Contains(t, dls[0].LastError, "unknown entity type")
}

func TestSettle_UndecodablePayloadDeadLetters(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	_, err := s.Queue.Enqueue(ctx, "entry", "e1", "create", []byte(`{broken`), time.Now().UTC())
	require.NoError(t, err)

	w.ProcessQueue(ctx)

	dls, derr := s.Queue.DeadLetters(ctx)
	require.NoError(t, derr)
	require.Len(t, dls, 1)
}

func TestUploadMedia_MissingFileDeadLetters(t *testing.T) {
	s := setupStore(t)
	client := &fakeClient{}
	monitor := newFakeMonitor(true)
	w := newWorker(s, client, monitor)
	ctx := context.Background()

	e := &models.Entry{ID: uuid.NewString(), ReportID: uuid.NewString(), Type: models.EntryTypePhoto}
	m := &models.Media{ID: uuid.NewString(), Type: models.EntryTypePhoto, LocalPath: "/nonexistent/p.jpg", Size: 10}
	require.NoError(t, s.SaveEntry(ctx, e, m))

	w.ProcessQueue(ctx)

	dls, err := s.Queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dls, 1, "a vanished source file cannot be retried into existence")
}
