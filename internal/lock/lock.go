// Package lock provides the named mutual-exclusion lease that keeps at most
// one notification drain running across all processes.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release when the caller does not hold the lease.
var ErrNotHeld = errors.New("lock not held")

// Locker acquires and releases named leases. A lease expires after its TTL
// even if never released, so a crashed holder cannot block forever.
type Locker interface {
	// TryAcquire takes the lease for holder without blocking. Returns false
	// when another holder has an unexpired lease.
	TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	// Release drops the lease only if holder still owns it.
	Release(ctx context.Context, name, holder string) error
}
