package repositories

import (
	"context"
	"time"
)

// CacheStore is the ephemeral key-value store surface used for cache-first
// message reads. Implementations must be safe for concurrent use across
// conversations; keys never interfere across conversations.
type CacheStore interface {
	// Get returns the cached value for key. found is false on a miss.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
