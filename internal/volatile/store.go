// Package volatile defines the low-latency key-value store behind the activity buffer,
// cooldown gate, config cache and raw event queue.
package volatile

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned by Get when the key does not exist or has expired.
var ErrNil = errors.New("volatile: key not found")

// Store is the set of atomic primitives the pipeline relies on. Every method is safe for
// concurrent use by many producers and workers; per-key operations are atomic.
type Store interface {
	// IncrBy adds delta to the integer at key and refreshes its TTL.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) error
	// GetDel atomically reads and removes the integer at key. ok is false when the key is absent.
	GetDel(ctx context.Context, key string) (value int64, ok bool, err error)
	// HIncrBy adds incr to the hash fields at key, overwrites the fields in set, and refreshes the TTL.
	HIncrBy(ctx context.Context, key string, incr, set map[string]int64, ttl time.Duration) error
	// HGetAllDel atomically reads every field of the hash at key and removes it. Empty map when absent.
	HGetAllDel(ctx context.Context, key string) (map[string]int64, error)
	// SetNX stores value with ttl only if key is absent. Returns true when this call created the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the string at key or ErrNil.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key with ttl (0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes keys; missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
	// RPush appends values to the tail of the list at key.
	RPush(ctx context.Context, key string, values ...[]byte) error
	// LPopN removes and returns up to n values from the head of the list at key, in order.
	LPopN(ctx context.Context, key string, n int) ([][]byte, error)
	// ScanPrefix returns every live key starting with prefix. Order is unspecified.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying client or database.
	Close() error
}
