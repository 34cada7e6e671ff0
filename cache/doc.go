// Package cache provides a generic in-memory key/value cache with sliding
// per-entry expiration and an atomic read-modify-write (Update) guarded by a
// per-key lock.
//
// Design
//
//   - Concurrency: keys are spread over shards, each protected by a Mutex.
//     The shard mutex is only held for synchronous map work; it is never held
//     while user code runs. The default shard count is nextPow2(2*GOMAXPROCS).
//
//   - Per-key lock: Update installs a lock slot for its key and holds it while
//     the caller's function runs. Every other operation on that key first
//     waits for the slot to disappear, then performs its mutation in the same
//     critical section, so no operation observes a half-applied update.
//     Releasing a slot wakes every waiter; each re-checks before proceeding.
//     Operations on other keys never wait.
//
//   - Expiration: a key with a positive TTL owns exactly one timer. Set, Add,
//     Replace and Update replace it; Get restarts its full window (sliding
//     expiration); Exists does not. A firing timer first waits for the key's
//     lock, then deletes the entry only if it is still the key's current
//     timer (checked by generation number).
//
//   - GetOrLoad: loads a missing value through Options.Loader under the key's
//     lock, so concurrent loads for one key run the Loader once.
//     If Loader is nil, GetOrLoad returns ErrNoLoader.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/LockWait/Update/Size
//     signals. By default NoopMetrics is used; plug the Prometheus or
//     OpenTelemetry adapter to export metrics.
//
//   - Callbacks: Options.OnEvict(k, v, reason) is called when an entry expires
//     or is deleted (reason is EvictExpired or EvictDeleted).
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{})
//	defer c.Close()
//	c.Set("a", []byte("1"), 0)
//	if v, ok := c.Get("a"); ok {
//	    _ = v // use value
//	}
//	c.Delete("a")
//
// Sliding TTL
//
//	c.Set("session", "v", 30*time.Second)
//	c.Get("session") // the entry now lives 30s from this read
//
// Atomic update
//
//	n, err := c.Update(ctx, "hits", func(_ context.Context, cur int, ok bool) (int, error) {
//	    return cur + 1, nil
//	}, 0)
//
// Exporting metrics (Prometheus adapter)
//
//	m := prom.New(nil, "slidecache", "demo", nil) // implements Metrics
//	c := cache.New[string, []byte](cache.Options[string, []byte]{Metrics: m})
package cache
