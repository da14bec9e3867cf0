// Package cache defines the key/value store boundary for the report engine.
//
// Two access modes share one contract: intermediate entries carry a finite TTL
// and expire on their own; permanent entries carry no TTL and are only ever
// overwritten or explicitly deleted. The store is agnostic to key shapes;
// key formats are owned by the report and task packages.
//
// TryAcquire is the single atomic primitive the task coordinator builds on.
// Backends must implement it as one uninterruptible set-if-absent operation,
// never as a separate existence check followed by a set.
package cache

import (
	"context"
	"time"
)

// Store is the cache backend contract. Implementations must be safe for
// concurrent use; all concurrency control in the engine is delegated to the
// backend's atomicity plus the keying scheme.
type Store interface {
	// Get reads the value at key into dest. Returns false if the key is
	// absent or expired. No side effects beyond lazy expiry.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set writes value at key, overwriting unconditionally.
	// A zero ttl stores the entry permanently.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// TryAcquire stores value at key iff no live entry exists, as a single
	// atomic operation. Returns true when the caller won the slot.
	// A zero ttl is rejected: acquisition without expiry would leak the slot
	// if the owning process crashes.
	TryAcquire(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	// Delete removes the entry at key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
