package models

import "time"

// ConflictRecord parks a delete-versus-edit clash until the user picks a
// side. Both snapshots are stored verbatim so either can be restored; the
// record itself stays untouched while the decision is pending.
type ConflictRecord struct {
	ID             int64
	EntityType     string
	EntityID       string
	Reason         string
	LocalSnapshot  []byte
	RemoteSnapshot []byte
	CreatedAt      time.Time
}
