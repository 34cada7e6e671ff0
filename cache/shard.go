package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/slidecache/internal/keylock"
	"github.com/IvanBrykalov/slidecache/internal/util"
)

// shard is an independent partition of the cache: its own mutex, entry map,
// expiration timers and per-key lock table.
//
// Every operation runs "wait for k's lock, then mutate" inside one critical
// section on mu. The wait releases mu only while parked, so nothing can slip
// in between a successful wait and the mutation that follows it.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	entries map[K]V
	timers  timers[K]
	locks   keylock.Table[K]

	opt  *Options[K, V]
	size *atomic.Int64 // cache-wide entry count, shared by all shards

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_       util.CacheLinePad
	hits    util.Counter
	misses  util.Counter
	expired util.Counter
	deleted util.Counter
	waits   util.Counter
	updates util.Counter
	failed  util.Counter
}

func newShard[K comparable, V any](opt *Options[K, V], size *atomic.Int64) *shard[K, V] {
	s := &shard[K, V]{
		entries: make(map[K]V),
		opt:     opt,
		size:    size,
	}
	s.timers = newTimers[K](opt.Clock, s.expire)
	return s
}

// Exists reports presence without touching the expiration timer.
func (s *shard[K, V]) Exists(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitLocked(k)
	_, ok := s.entries[k]
	return ok
}

// Get returns the value and restarts its TTL window on hit.
func (s *shard[K, V]) Get(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitLocked(k)
	v, ok := s.entries[k]
	if !ok {
		s.misses.Inc()
		s.opt.Metrics.Miss()
		return v, false
	}
	s.timers.touch(k)
	s.hits.Inc()
	s.opt.Metrics.Hit()
	return v, true
}

// Set stores unconditionally.
func (s *shard[K, V]) Set(k K, v V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitLocked(k)
	s.putLocked(k, v, ttl)
}

// Add stores only if k is absent.
func (s *shard[K, V]) Add(k K, v V, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitLocked(k)
	if _, ok := s.entries[k]; ok {
		return false
	}
	s.putLocked(k, v, ttl)
	return true
}

// Replace stores only if k is present.
func (s *shard[K, V]) Replace(k K, v V, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitLocked(k)
	if _, ok := s.entries[k]; !ok {
		return false
	}
	s.putLocked(k, v, ttl)
	return true
}

// Delete removes k and its timer. Absent keys are not an error.
func (s *shard[K, V]) Delete(k K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitLocked(k)
	s.timers.cancel(k)
	s.removeLocked(k, EvictDeleted)
}

// Update runs fn under k's lock and stores its result on success.
func (s *shard[K, V]) Update(ctx context.Context, k K, fn UpdateFunc[V], ttl time.Duration) (V, error) {
	ran := false
	v, err := s.mutate(ctx, k, ttl, func(ctx context.Context, cur V, ok bool) (V, bool, error) {
		ran = true
		nv, err := fn(ctx, cur, ok)
		return nv, err == nil, err
	})
	if ran {
		s.updates.Inc()
		if err != nil {
			s.failed.Inc()
			s.opt.Logger.Debug("cache update failed", zap.Any("key", k), zap.Error(err))
		}
		s.opt.Metrics.Update(err)
	}
	return v, err
}

// Load fills k via load if it is still absent once the lock is held.
// A value already present is returned as is and left untouched.
func (s *shard[K, V]) Load(ctx context.Context, k K, load func(context.Context, K) (V, error), ttl time.Duration) (V, error) {
	return s.mutate(ctx, k, ttl, func(ctx context.Context, cur V, ok bool) (V, bool, error) {
		if ok {
			return cur, false, nil
		}
		v, err := load(ctx, k)
		return v, err == nil, err
	})
}

// mutate is the locked read-modify-write shared by Update and Load.
// fn runs without mu held; it reports whether its result must be stored.
// The key lock is released on every exit path, including a panic in fn,
// and only after the result (if any) is stored.
func (s *shard[K, V]) mutate(
	ctx context.Context,
	k K,
	ttl time.Duration,
	fn func(ctx context.Context, cur V, ok bool) (V, bool, error),
) (v V, err error) {
	s.mu.Lock()
	if err = s.waitContextLocked(ctx, k); err != nil {
		s.mu.Unlock()
		return v, err
	}
	// Lock must follow the wait inside the same critical section.
	if err = s.locks.Lock(k); err != nil {
		s.mu.Unlock()
		s.opt.Logger.Error("key lock invariant violated", zap.Error(err))
		return v, err
	}
	cur, ok := s.entries[k]
	s.mu.Unlock()

	store := false
	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if store {
			s.putLocked(k, v, ttl)
		}
		if uerr := s.locks.Unlock(k); uerr != nil {
			s.opt.Logger.Error("key lock invariant violated", zap.Error(uerr))
			if err == nil {
				err = uerr
			}
		}
	}()

	v, store, err = fn(ctx, cur, ok)
	if err != nil {
		store = false
		var zero V
		return zero, err
	}
	return v, nil
}

// Len returns the number of resident entries in this shard.
func (s *shard[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops every timer of this shard. Entries stay readable.
func (s *shard[K, V]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers.stopAll()
}

func (s *shard[K, V]) addStats(st *Stats) {
	st.Hits += s.hits.Load()
	st.Misses += s.misses.Load()
	st.Expired += s.expired.Load()
	st.Deleted += s.deleted.Load()
	st.LockWaits += s.waits.Load()
	st.Updates += s.updates.Load()
	st.FailedUpdates += s.failed.Load()
}

// -------------------- internals (mu held) --------------------

// waitLocked parks until k has no in-flight Update.
func (s *shard[K, V]) waitLocked(k K) {
	if !s.locks.Locked(k) {
		return
	}
	start := time.Now()
	s.locks.Wait(&s.mu, k)
	s.observeWait(time.Since(start))
}

func (s *shard[K, V]) waitContextLocked(ctx context.Context, k K) error {
	if !s.locks.Locked(k) {
		return nil
	}
	start := time.Now()
	_, err := s.locks.WaitContext(ctx, &s.mu, k)
	s.observeWait(time.Since(start))
	return err
}

func (s *shard[K, V]) observeWait(d time.Duration) {
	s.waits.Inc()
	s.opt.Metrics.LockWait(d)
}

// putLocked stores v and replaces k's expiration timer.
func (s *shard[K, V]) putLocked(k K, v V, ttl time.Duration) {
	if _, ok := s.entries[k]; !ok {
		s.resize(1)
	}
	s.entries[k] = v
	s.timers.schedule(k, ttl)
}

// removeLocked drops the entry (not its timer) and reports the eviction.
func (s *shard[K, V]) removeLocked(k K, reason EvictReason) {
	v, ok := s.entries[k]
	if !ok {
		return
	}
	delete(s.entries, k)
	s.resize(-1)

	switch reason {
	case EvictExpired:
		s.expired.Inc()
	case EvictDeleted:
		s.deleted.Inc()
	}
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(k, v, reason)
	}
}

func (s *shard[K, V]) resize(delta int64) {
	n := s.size.Add(delta)
	s.opt.Metrics.Size(int(n))
}

// expire is the timer callback. It runs on the timer goroutine.
func (s *shard[K, V]) expire(k K, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An in-flight Update may be about to rewrite k; let it finish first.
	s.waitLocked(k)

	e, ok := s.timers.current(k, gen)
	if !ok {
		// Superseded by a later Set/Update/Delete.
		return
	}
	if rem := s.timers.remaining(e); rem > 0 {
		// Touched after this fire was already queued.
		e.t.Reset(rem)
		return
	}
	s.timers.cancel(k)
	s.removeLocked(k, EvictExpired)
	s.opt.Logger.Debug("cache entry expired", zap.Any("key", k), zap.Duration("ttl", e.ttl))
}
