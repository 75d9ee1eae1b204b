// Package capture ingests payloads into the agent's media directory.
// The agent core only sees the produced file and its metadata; hardware
// capture surfaces (camera, recorder, scanner) would live here too,
// each producing the same Result.
package capture

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/filex"
)

// Result describes one captured payload, already stored in the agent's
// media directory.
type Result struct {
	Path       string
	Type       models.EntryType
	Size       int64
	DurationMS int64
	CapturedAt time.Time
	Latitude   *float64
	Longitude  *float64
}

// FileImporter ingests files that already exist on disk, copying them
// into the media directory so the original can vanish (e.g. a removable
// card) without breaking a queued upload.
type FileImporter struct {
	mediaDir string
}

func NewFileImporter(mediaDir string) (*FileImporter, error) {
	dir, err := filex.EnsureDir(mediaDir)
	if err != nil {
		return nil, err
	}
	return &FileImporter{mediaDir: dir}, nil
}

// Import copies src into the media directory under a fresh name and
// returns the capture result pointing at the copy.
func (f *FileImporter) Import(src string, entryType models.EntryType, capturedAt time.Time) (*Result, error) {
	name := uuid.NewString() + filepath.Ext(src)
	path, size, err := filex.CopyFile(src, f.mediaDir, name)
	if err != nil {
		return nil, err
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	return &Result{
		Path:       path,
		Type:       entryType,
		Size:       size,
		CapturedAt: capturedAt,
	}, nil
}
