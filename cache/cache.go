package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/slidecache/internal/keylock"
	"github.com/IvanBrykalov/slidecache/internal/util"
)

var (
	// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
	ErrNoLoader = errors.New("cache: no Loader provided")
	// ErrClosed is returned by Update and GetOrLoad after Close.
	ErrClosed = errors.New("cache: closed")

	// ErrLockConflict and ErrInvalidState signal a broken per-key lock
	// invariant. They are never expected in normal use.
	ErrLockConflict = keylock.ErrLockConflict
	ErrInvalidState = keylock.ErrInvalidState
)

// cache is a sharded in-memory KV store with per-key locks and sliding TTLs.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   util.Hasher[K]
	closed atomic.Bool
	size   atomic.Int64

	opt Options[K, V]
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - nil Logger   -> zap.NewNop()
//   - nil Clock    -> wall clock
//   - Shards <= 0  -> auto, rounded up to the next power of two
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Clock == nil {
		opt.Clock = wallClock{}
	}

	c := &cache[K, V]{
		hash: util.NewHasher[K](),
		opt:  opt,
	}
	n := util.ShardCount(opt.Shards)
	c.shards = make([]*shard[K, V], n)
	for i := range c.shards {
		c.shards[i] = newShard(&c.opt, &c.size)
	}
	return c
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) Exists(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Exists(k)
}

func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).Get(k)
}

func (c *cache[K, V]) Set(k K, v V, ttl time.Duration) bool {
	if c.closed.Load() {
		return false
	}
	c.getShard(k).Set(k, v, ttl)
	return true
}

func (c *cache[K, V]) Add(k K, v V, ttl time.Duration) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Add(k, v, ttl)
}

func (c *cache[K, V]) Replace(k K, v V, ttl time.Duration) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Replace(k, v, ttl)
}

func (c *cache[K, V]) Delete(k K) bool {
	if c.closed.Load() {
		return false
	}
	c.getShard(k).Delete(k)
	return true
}

func (c *cache[K, V]) Update(ctx context.Context, k K, fn UpdateFunc[V], ttl time.Duration) (V, error) {
	if c.closed.Load() {
		var zero V
		return zero, ErrClosed
	}
	return c.getShard(k).Update(ctx, k, fn, ttl)
}

func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// fast path
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}
	if c.opt.Loader == nil {
		return zero, ErrNoLoader
	}
	return c.getShard(k).Load(ctx, k, c.opt.Loader, c.opt.DefaultTTL)
}

// Len returns the total number of resident entries across all shards.
func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

func (c *cache[K, V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		s.addStats(&st)
	}
	return st
}

// Close marks the cache as closed and stops every pending expiration.
// In-flight Updates still finish and release their keys.
func (c *cache[K, V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	for _, s := range c.shards {
		s.Close()
	}
	c.opt.Logger.Debug("cache closed", zap.Int("entries", int(c.size.Load())))
	return nil
}

// getShard picks a shard by hashing the key and masking with len-1.
// len(c.shards) is guaranteed to be a power of two.
func (c *cache[K, V]) getShard(k K) *shard[K, V] {
	return c.shards[util.ShardIndex(c.hash.Sum64(k), len(c.shards))]
}
