// Package lock provides TTL lock abstractions used to coordinate the
// reservation expiry sweep across service instances. For single-node
// deployments a memory lock suffices; multi-instance deployments use the
// Redis lock. The sweep itself is idempotent, so the lock only avoids
// duplicate work, it is not required for correctness.
package lock

import (
	"context"
	"time"
)

// Locker is a TTL lock. Locks auto-expire so a crashed holder never
// wedges the system.
type Locker interface {
	// Acquire attempts to acquire the lock. Returns true if acquired,
	// false if it is held elsewhere.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases the lock. Returns true if this caller held it.
	Release(ctx context.Context, key string) (bool, error)
}

// SweepKey is the lock key for the reservation expiry sweep.
const SweepKey = "pergamon:lock:reservation-sweep"
