package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
	"github.com/ksolodov/fieldreporter/internal/filex"
	"github.com/ksolodov/fieldreporter/internal/logging"
	"github.com/ksolodov/fieldreporter/internal/server/blob"
	"github.com/ksolodov/fieldreporter/internal/server/models"
	"github.com/ksolodov/fieldreporter/internal/server/repositories/media"
	"github.com/ksolodov/fieldreporter/internal/server/repositories/versions"
)

// MediaService ingests media payloads chunk by chunk. Chunks append to
// a staging file named after the media id; Complete assembles the
// object into blob storage and stamps the row with a fresh version.
//
// The staging file size is the single source of truth for the next
// expected offset, so a restarted server resumes exactly where the
// bytes stopped.
type MediaService struct {
	db         *sql.DB
	media      media.Repository
	blob       blob.Store
	stagingDir string
	logger     logging.Logger
}

func NewMediaService(db *sql.DB, blobStore blob.Store, stagingDir string, logger logging.Logger) (*MediaService, error) {
	dir, err := filex.EnsureDir(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare staging dir: %w", err)
	}
	return &MediaService{
		db:         db,
		media:      media.NewPostgresRepository(db),
		blob:       blobStore,
		stagingDir: dir,
		logger:     logger,
	}, nil
}

func (s *MediaService) stagingPath(mediaID string) string {
	return filepath.Join(s.stagingDir, mediaID)
}

func (s *MediaService) stagedSize(mediaID string) (int64, error) {
	info, err := os.Stat(s.stagingPath(mediaID))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat staging file: %w", err)
	}
	return info.Size(), nil
}

// ReceiveChunk appends one chunk at the given offset. An offset that
// does not match the staged size is answered with the expected offset
// and common.ErrVersionConflict so the client can resynchronize.
func (s *MediaService) ReceiveChunk(ctx context.Context, mediaID string, offset int64, body io.Reader) (*api.ChunkResult, error) {
	m, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if m.Complete {
		return s.completedResult(m), nil
	}

	staged, err := s.stagedSize(mediaID)
	if err != nil {
		return nil, err
	}
	if offset != staged {
		return &api.ChunkResult{MediaID: mediaID, NextOffset: staged},
			fmt.Errorf("%w: expected offset %d, got %d", common.ErrVersionConflict, staged, offset)
	}

	f, err := os.OpenFile(s.stagingPath(mediaID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging file: %w", err)
	}
	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append chunk: %w", err)
	}

	next := staged + n
	if next > m.Size {
		// Overrun means the client and server disagree about the file;
		// discard the staged bytes so the upload can start over.
		_ = os.Remove(s.stagingPath(mediaID))
		return nil, fmt.Errorf("%w: staged %d bytes exceeds declared size %d",
			common.ErrPermanentValidation, next, m.Size)
	}

	if err := s.media.SetUploadedBytes(ctx, mediaID, next); err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "chunk staged", "media_id", mediaID, "offset", offset, "bytes", n)
	return &api.ChunkResult{MediaID: mediaID, NextOffset: next}, nil
}

// Complete assembles the staged bytes into blob storage. Completing an
// already complete media is a no-op returning the stored location.
func (s *MediaService) Complete(ctx context.Context, mediaID string) (*api.ChunkResult, error) {
	m, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if m.Complete {
		return s.completedResult(m), nil
	}

	staged, err := s.stagedSize(mediaID)
	if err != nil {
		return nil, err
	}
	if staged != m.Size {
		return &api.ChunkResult{MediaID: mediaID, NextOffset: staged},
			fmt.Errorf("%w: staged %d of %d bytes", common.ErrVersionConflict, staged, m.Size)
	}

	f, err := os.Open(s.stagingPath(mediaID))
	if err != nil {
		return nil, fmt.Errorf("failed to open staging file: %w", err)
	}
	defer f.Close()

	key := "media/" + mediaID
	url, err := s.blob.Put(ctx, key, f, m.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		v, err := versions.NewPostgresRepository(tx).Next(ctx)
		if err != nil {
			return err
		}
		return media.NewPostgresRepository(tx).MarkComplete(ctx, mediaID, key, url, v)
	})
	if err != nil {
		return nil, err
	}

	_ = os.Remove(s.stagingPath(mediaID))

	s.logger.Info(ctx, "media assembled", "media_id", mediaID, "size", m.Size, "key", key)
	return &api.ChunkResult{MediaID: mediaID, NextOffset: m.Size, Complete: true, RemoteURL: url}, nil
}

func (s *MediaService) completedResult(m *models.Media) *api.ChunkResult {
	return &api.ChunkResult{
		MediaID:    m.ID,
		NextOffset: m.Size,
		Complete:   true,
		RemoteURL:  m.RemoteURL,
	}
}
