package syncqueue

import (
	"context"
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
)

// Repository is the durable queue of pending sync mutations.
//
// Enqueue must run in the same transaction as the local write producing
// the mutation; bind the repository to the transaction's DBTX for that.
// Items for one entity are consumed strictly in creation order; across
// entities FIFO is a fairness heuristic only.
type Repository interface {
	// Enqueue appends an item and returns its queue id.
	Enqueue(ctx context.Context, entityType, entityID, action string, payload []byte, now time.Time) (int64, error)

	// DequeueNext returns the oldest retry-eligible head item at the
	// given instant, or nil when nothing is ready. The head item of an
	// entity blocks its younger siblings regardless of their
	// eligibility, preserving create -> update -> delete order.
	DequeueNext(ctx context.Context, now time.Time) (*models.SyncQueueItem, error)

	// Ack removes an item after confirmed server acknowledgment.
	Ack(ctx context.Context, id int64) error

	// Nack records a failed attempt: retry count up, error and attempt
	// time stored. Once the policy's retry budget is spent the item
	// moves to the dead-letter state; the returned flag reports that
	// move so the caller can react.
	Nack(ctx context.Context, id int64, cause string, now time.Time) (bool, error)

	// MoveToDeadLetter parks an item immediately (permanent failures).
	MoveToDeadLetter(ctx context.Context, id int64, cause string, now time.Time) error

	// Requeue returns a dead-letter item to the live queue with a fresh
	// retry budget (manual retry).
	Requeue(ctx context.Context, id int64) error

	// Remove drops an item without acknowledgment (user cancel). The
	// underlying entity is untouched.
	Remove(ctx context.Context, id int64) error

	// RemoveByEntity drops every live item for one entity. Used when a
	// merge decides the server copy wins and the queued pushes are stale.
	RemoveByEntity(ctx context.Context, entityType, entityID string) error

	// DeadLetters lists parked items for the "action needed" surface.
	DeadLetters(ctx context.Context) ([]models.SyncQueueItem, error)

	// PendingCount reports live (non-dead-letter) items.
	PendingCount(ctx context.Context) (int, error)
}
