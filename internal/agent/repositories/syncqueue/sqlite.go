package syncqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/dbx"
)

// SQLiteRepository implements Repository over a dbx.DBTX with the given
// retry policy.
type SQLiteRepository struct {
	db     dbx.DBTX
	policy RetryPolicy
}

func NewSQLiteRepository(db dbx.DBTX, policy RetryPolicy) *SQLiteRepository {
	return &SQLiteRepository{db: db, policy: policy}
}

const queueColumns = `id, entity_type, entity_id, action, payload,
	retry_count, last_error, dead_letter, created_at, last_attempt`

func scanItem(row interface{ Scan(...any) error }, it *models.SyncQueueItem) error {
	var lastAttempt sql.NullTime
	if err := row.Scan(&it.ID, &it.EntityType, &it.EntityID, &it.Action, &it.Payload,
		&it.RetryCount, &it.LastError, &it.DeadLetter, &it.CreatedAt, &lastAttempt); err != nil {
		return err
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		it.LastAttempt = &t
	}
	return nil
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, entityType, entityID, action string, payload []byte, now time.Time) (int64, error) {
	query := ` INSERT INTO sync_queue (entity_type, entity_id, action, payload, created_at)
			VALUES (?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query, entityType, entityID, action, payload, now)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue id: %w", err)
	}
	return id, nil
}

// DequeueNext selects the head item (lowest id) of every entity and
// returns the first one whose backoff interval has elapsed. Eligibility
// is computed in Go so the policy stays in one testable place.
func (r *SQLiteRepository) DequeueNext(ctx context.Context, now time.Time) (*models.SyncQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
		WHERE dead_letter=0
		  AND id IN (SELECT MIN(id) FROM sync_queue WHERE dead_letter=0 GROUP BY entity_type, entity_id)
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select queue heads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := &models.SyncQueueItem{}
		if err := scanItem(rows, item); err != nil {
			return nil, err
		}
		if !r.policy.NextEligible(item).After(now) {
			return item, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *SQLiteRepository) Ack(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to ack item: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Nack(ctx context.Context, id int64, cause string, now time.Time) (bool, error) {
	query := `UPDATE sync_queue
		SET retry_count = retry_count + 1,
		    last_error = ?,
		    last_attempt = ?,
		    dead_letter = CASE WHEN retry_count + 1 >= ? THEN 1 ELSE 0 END
		WHERE id=? AND dead_letter=0`
	res, err := r.db.ExecContext(ctx, query, cause, now, r.policy.MaxRetries, id)
	if err != nil {
		return false, fmt.Errorf("failed to nack item: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return false, common.ErrNotFound
	}

	var dead bool
	if err := r.db.QueryRowContext(ctx, `SELECT dead_letter FROM sync_queue WHERE id=?`, id).Scan(&dead); err != nil {
		return false, fmt.Errorf("failed to read dead-letter state: %w", err)
	}
	return dead, nil
}

func (r *SQLiteRepository) MoveToDeadLetter(ctx context.Context, id int64, cause string, now time.Time) error {
	query := `UPDATE sync_queue
		SET dead_letter=1, last_error=?, last_attempt=?, retry_count=retry_count+1
		WHERE id=?`
	res, err := r.db.ExecContext(ctx, query, cause, now, id)
	if err != nil {
		return fmt.Errorf("failed to dead-letter item: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Requeue(ctx context.Context, id int64) error {
	query := `UPDATE sync_queue
		SET dead_letter=0, retry_count=0, last_error='', last_attempt=NULL
		WHERE id=? AND dead_letter=1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to requeue item: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) RemoveByEntity(ctx context.Context, entityType, entityID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity_type=? AND entity_id=? AND dead_letter=0`, entityType, entityID)
	if err != nil {
		return fmt.Errorf("failed to remove items for entity: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeadLetters(ctx context.Context) ([]models.SyncQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE dead_letter=1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select dead letters: %w", err)
	}
	defer rows.Close()

	var result []models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		if err := scanItem(rows, &item); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE dead_letter=0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending items: %w", err)
	}
	return n, nil
}
