package models

import "time"

// SyncQueueItem is one durable unit of pending sync work. It is created
// in the same transaction as the local write that produced the mutation
// and removed only on confirmed server acknowledgment.
type SyncQueueItem struct {
	// ID is the auto-incrementing queue position. Per-entity ordering is
	// derived from it.
	ID int64

	// EntityType/EntityID name the entity the mutation applies to.
	EntityType string
	EntityID   string

	// Action is create, update or delete.
	Action string

	// Payload is the JSON snapshot of the entity at enqueue time.
	Payload []byte

	// RetryCount is the number of failed attempts so far. It only grows.
	RetryCount int

	// LastError records the most recent failure, if any.
	LastError string

	// DeadLetter marks an item that exhausted automatic retries or hit a
	// permanent validation error; it waits for a manual decision.
	DeadLetter bool

	CreatedAt   time.Time
	LastAttempt *time.Time
}
