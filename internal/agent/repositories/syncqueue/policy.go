package syncqueue

import (
	"time"

	"github.com/ksolodov/fieldreporter/internal/agent/models"
)

// RetryPolicy controls when a failed queue item becomes eligible again.
// The delay before attempt n+1 is min(BaseDelay * 2^(n-1), MaxDelay)
// where n is the number of failures so far. After MaxRetries failures
// the item is parked in the dead-letter state instead of retried.
//
// These are configurable defaults, not contractual values.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultRetryPolicy returns 1s base, 15m cap, 8 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   15 * time.Minute,
		MaxRetries: 8,
	}
}

// Delay returns the backoff interval after retryCount failures. The
// doubling loop saturates at MaxDelay, so large counts cannot overflow.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// NextEligible returns the earliest time the item may be attempted
// again. An item never attempted is eligible immediately.
func (p RetryPolicy) NextEligible(item *models.SyncQueueItem) time.Time {
	if item.LastAttempt == nil {
		return item.CreatedAt
	}
	return item.LastAttempt.Add(p.Delay(item.RetryCount))
}
