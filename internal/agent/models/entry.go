// Package models defines the agent-side data model: reports, captured
// entries, media payloads and sync-queue items persisted in the local
// SQLite database.
package models

import "time"

// EntryType classifies a captured entry.
type EntryType string

const (
	EntryTypePhoto EntryType = "photo"
	EntryTypeVideo EntryType = "video"
	EntryTypeAudio EntryType = "audio"
	EntryTypeNote  EntryType = "note"
	EntryTypeScan  EntryType = "scan"
)

// HasMedia reports whether entries of this type carry a binary payload.
func (t EntryType) HasMedia() bool {
	return t != EntryTypeNote
}

// Entry is a single captured piece of evidence belonging to exactly one
// report. SyncPending stays true from the local write until the upload
// worker confirms remote persistence; user edits re-flag it.
type Entry struct {
	// ID is a globally unique identifier for the entry.
	ID string

	// ReportID is the owning report.
	ReportID string

	// Type is the capture kind (photo, video, audio, note, scan).
	Type EntryType

	// Content holds note text or a caption for media entries.
	Content string

	// Latitude/Longitude is the optional capture location.
	Latitude  *float64
	Longitude *float64

	// CapturedAt is when the evidence was recorded by the device.
	CapturedAt time.Time

	// CreatedAt/UpdatedAt are local bookkeeping times in UTC.
	CreatedAt time.Time
	UpdatedAt time.Time

	// SyncPending is true until the server acknowledged this state.
	SyncPending bool

	// RemoteVersion is the server-assigned version this local state is
	// based on. Zero means the entry was never pushed.
	RemoteVersion int64

	// Deleted marks the entry as a tombstone (kept for sync).
	Deleted bool
}

// Report is a collection of entries representing one field documentation
// session.
type Report struct {
	ID            string
	Title         string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SyncPending   bool
	RemoteVersion int64
	Deleted       bool
}
