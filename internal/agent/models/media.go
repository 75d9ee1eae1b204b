package models

import "time"

// ProcessingStatus tracks a media payload through its upload lifecycle.
// Transitions only move forward: pending -> uploading -> complete or
// failed; failed may re-enter uploading on retry. A pending payload can
// fail directly when its metadata push is rejected before any chunk
// goes out.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingUploading ProcessingStatus = "uploading"
	ProcessingComplete  ProcessingStatus = "complete"
	ProcessingFailed    ProcessingStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal
// forward transition.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	switch s {
	case ProcessingPending:
		return next == ProcessingUploading || next == ProcessingFailed
	case ProcessingUploading:
		return next == ProcessingComplete || next == ProcessingFailed
	case ProcessingFailed:
		return next == ProcessingUploading
	default:
		return false
	}
}

// Media is the binary payload associated with a media-bearing entry.
// UploadedBytes is the last server-acknowledged chunk offset; a resumed
// upload restarts there, not from zero. The record is never deleted
// while a queue item still references its owning entry.
type Media struct {
	ID            string
	EntryID       string
	Type          EntryType
	LocalPath     string
	RemoteURL     string
	ThumbnailPath string
	Size          int64
	DurationMS    int64
	Status        ProcessingStatus
	Progress      int
	UploadedBytes int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
