package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictExpired: removed by its expiration timer.
	EvictExpired EvictReason = iota
	// EvictDeleted: removed by an explicit Delete.
	EvictDeleted
)

// String returns a stable lowercase label for r.
func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// LockWait is reported when an operation had to park behind an
	// in-flight Update on the same key.
	LockWait(d time.Duration)
	// Update is reported once per completed Update; err is the computation's
	// error (nil on success).
	Update(err error)
	Size(entries int)
}

// Timer is a scheduled callback that can be re-armed or cancelled.
// *time.Timer satisfies it.
type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

// Clock provides time and timers; useful for deterministic tests.
type Clock interface {
	NowUnixNano() int64
	// AfterFunc runs f in its own goroutine after d, like time.AfterFunc.
	AfterFunc(d time.Duration, f func()) Timer
}

// Options configures the cache behavior. Zero values are safe;
// sane defaults are applied in New():
//   - Shards <= 0  => auto (rounded up to power of two)
//   - nil Metrics  => NoopMetrics
//   - nil Logger   => zap.NewNop()
//   - nil Clock    => wall clock and time.AfterFunc
type Options[K comparable, V any] struct {
	// Shards defines the number of shards. If 0, an automatic value is chosen
	// (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// DefaultTTL applies to values stored by GetOrLoad (0 = no expiration).
	DefaultTTL time.Duration

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// OnEvict is called on expiry and Delete under the shard lock; keep
	// callbacks lightweight and never call back into the cache.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics
	Logger  *zap.Logger

	// Clock allows overriding time and timers (tests).
	Clock Clock
}

type wallClock struct{}

func (wallClock) NowUnixNano() int64 { return time.Now().UnixNano() }

func (wallClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
