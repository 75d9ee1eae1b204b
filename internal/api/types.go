// Package api defines the JSON wire types shared by the agent and the
// server. Queue payload snapshots use the same types, so an enqueued
// mutation is already in push format.
package api

import "time"

// EntityType names the kind of entity a sync operation applies to.
type EntityType string

const (
	EntityReport EntityType = "report"
	EntityEntry  EntityType = "entry"
	EntityMedia  EntityType = "media"
)

// Action names the mutation carried by a sync operation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Report is a field documentation session owning a set of entries.
type Report struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes"`
	Deleted   bool      `json:"deleted,omitempty"`
	Version   int64     `json:"version,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is a captured unit of evidence attached to a report.
type Entry struct {
	ID         string    `json:"id"`
	ReportID   string    `json:"report_id"`
	Type       string    `json:"type"`
	Content    string    `json:"content,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
	Version    int64     `json:"version,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Media describes the binary payload belonging to an entry. Chunk bytes
// travel separately through the chunk endpoint.
type Media struct {
	ID         string    `json:"id"`
	EntryID    string    `json:"entry_id"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	RemoteURL  string    `json:"remote_url,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
	Version    int64     `json:"version,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PushItem is one queued mutation presented to the server. Exactly one
// of Report/Entry/Media is set, matching EntityType.
type PushItem struct {
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	Action      Action     `json:"action"`
	BaseVersion int64      `json:"base_version"`
	Report      *Report    `json:"report,omitempty"`
	Entry       *Entry     `json:"entry,omitempty"`
	Media       *Media     `json:"media,omitempty"`
}

// PushResult acknowledges a processed mutation. Version is the
// server-assigned version of the entity after the push.
type PushResult struct {
	EntityID string `json:"entity_id"`
	Version  int64  `json:"version"`
}

// PullResponse carries every change on the server newer than the
// requested version, plus the new high-water mark.
type PullResponse struct {
	Reports []Report `json:"reports"`
	Entries []Entry  `json:"entries"`
	Media   []Media  `json:"media"`
	Version int64    `json:"version"`
}

// ChunkResult acknowledges one uploaded media chunk. NextOffset is the
// byte offset the server expects next; on an offset mismatch the server
// answers 409 with NextOffset set so the client can resynchronize.
type ChunkResult struct {
	MediaID    string `json:"media_id"`
	NextOffset int64  `json:"next_offset"`
	Complete   bool   `json:"complete"`
	RemoteURL  string `json:"remote_url,omitempty"`
}

// RegisterRequest enrolls a device.
type RegisterRequest struct {
	DeviceName string `json:"device_name"`
}

// RegisterResponse returns the device identity and its access token.
type RegisterResponse struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
}

// LoginRequest re-issues a token for a known device.
type LoginRequest struct {
	DeviceID string `json:"device_id"`
}

// LoginResponse carries the refreshed token.
type LoginResponse struct {
	Token string `json:"token"`
}

// Error is the uniform error body for non-2xx responses.
type Error struct {
	Message string `json:"error"`
}
