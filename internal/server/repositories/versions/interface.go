package versions

import "context"

// Repository hands out monotonically increasing version numbers. Every
// accepted mutation gets the next number; pulls use the current value
// as the high-water mark.
type Repository interface {
	Next(ctx context.Context) (int64, error)
	Current(ctx context.Context) (int64, error)
}
