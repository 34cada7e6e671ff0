package cache

import "time"

// expiry is the live expiration timer of one key.
type expiry struct {
	t        Timer
	ttl      time.Duration // full sliding window, restored on every touch
	deadline int64         // UnixNano; moves forward on touch
	gen      uint64        // identifies this timer among all timers of the shard
}

// timers owns at most one expiry per key.
// All methods are called with the owning shard's mutex held; the fire
// callback runs on the timer goroutine and must take that mutex itself.
type timers[K comparable] struct {
	m       map[K]*expiry
	gen     uint64
	clock   Clock
	fire    func(k K, gen uint64)
	stopped bool
}

func newTimers[K comparable](clock Clock, fire func(k K, gen uint64)) timers[K] {
	return timers[K]{
		m:     make(map[K]*expiry),
		clock: clock,
		fire:  fire,
	}
}

// schedule replaces k's timer. A non-positive ttl leaves k without one.
func (ts *timers[K]) schedule(k K, ttl time.Duration) {
	ts.cancel(k)
	if ttl <= 0 || ts.stopped {
		return
	}
	ts.gen++
	gen := ts.gen
	e := &expiry{
		ttl:      ttl,
		deadline: ts.clock.NowUnixNano() + int64(ttl),
		gen:      gen,
	}
	// The callback blocks on the shard mutex we hold, so it can't observe
	// the map before e is stored.
	e.t = ts.clock.AfterFunc(ttl, func() { ts.fire(k, gen) })
	ts.m[k] = e
}

// touch restarts k's full TTL window from now.
func (ts *timers[K]) touch(k K) {
	e, ok := ts.m[k]
	if !ok {
		return
	}
	e.deadline = ts.clock.NowUnixNano() + int64(e.ttl)
	e.t.Reset(e.ttl)
}

// cancel stops and forgets k's timer, if any.
func (ts *timers[K]) cancel(k K) {
	if e, ok := ts.m[k]; ok {
		e.t.Stop()
		delete(ts.m, k)
	}
}

// current returns k's timer only if it is still the one created with gen.
func (ts *timers[K]) current(k K, gen uint64) (*expiry, bool) {
	e, ok := ts.m[k]
	if !ok || e.gen != gen {
		return nil, false
	}
	return e, true
}

// remaining returns how long until e's deadline; <= 0 means it is due.
func (ts *timers[K]) remaining(e *expiry) time.Duration {
	return time.Duration(e.deadline - ts.clock.NowUnixNano())
}

// stopAll cancels every timer and refuses new ones.
func (ts *timers[K]) stopAll() {
	for k, e := range ts.m {
		e.t.Stop()
		delete(ts.m, k)
	}
	ts.stopped = true
}

func (ts *timers[K]) count() int { return len(ts.m) }
