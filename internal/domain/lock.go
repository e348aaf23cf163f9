package domain

import (
	"context"
	"time"
)

// Locker grants short-lived exclusive leases across service replicas.
// TryLock returns ok=false without error when another holder owns key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
