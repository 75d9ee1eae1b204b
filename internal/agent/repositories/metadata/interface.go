// Package metadata is a small key/value store for agent bookkeeping
// such as the pull high-water mark and the registered device identity.
package metadata

import "context"

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeyLastSyncVersion = "last_sync_version"
	KeyDeviceID        = "device_id"
	KeyDeviceToken     = "device_token"
)
