package cache

import (
	"context"
	"time"
)

// UpdateFunc computes the new value for a key from its current one.
// ok is false when the key is absent (current is then the zero value).
// It may block; the key stays locked until it returns.
type UpdateFunc[V any] func(ctx context.Context, current V, ok bool) (V, error)

// Cache is an in-memory key/value cache with sliding per-key expiration and
// a per-key lock for atomic read-modify-write.
// All methods are safe for concurrent use by multiple goroutines.
//
// Every method first waits for any in-flight Update on the same key to
// finish, so none of them observes a half-applied update. Operations on
// different keys never wait on each other.
//
// A ttl <= 0 means the entry never expires by time.
type Cache[K comparable, V any] interface {
	// Exists reports whether k is present. It does not extend the entry's TTL.
	Exists(k K) bool

	// Get returns the value for k and a boolean flag indicating presence.
	// On hit, the entry's TTL restarts from its full duration.
	Get(k K) (V, bool)

	// Set stores k→v unconditionally and (re)schedules its expiration.
	// Returns false only after Close.
	Set(k K, v V, ttl time.Duration) bool

	// Add stores k→v only if k is absent. Returns whether it stored.
	Add(k K, v V, ttl time.Duration) bool

	// Replace stores k→v only if k is present. Returns whether it stored.
	Replace(k K, v V, ttl time.Duration) bool

	// Delete removes k and cancels its expiration. It reports true whether
	// or not k was present (false only after Close).
	Delete(k K) bool

	// Update locks k, passes its current value to fn and stores the result
	// with the given ttl. No other operation on k runs until Update returns.
	// If fn fails (or panics) nothing is written and the lock is still
	// released; fn's error is returned as is.
	// ctx bounds the wait for the lock and is passed to fn.
	// fn must not call back into the cache for k: it would wait on itself.
	Update(ctx context.Context, k K, fn UpdateFunc[V], ttl time.Duration) (V, error)

	// GetOrLoad returns the value for k, loading it via Options.Loader on miss.
	// Concurrent loads for the same key are serialized by the key's lock, so
	// the Loader runs once and later callers see its result.
	// If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// Len returns the total number of resident entries across all shards.
	Len() int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats

	// Close stops all expiration timers and marks the cache closed.
	// It is idempotent and returns nil.
	Close() error
}
