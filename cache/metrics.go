package cache

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                   {}
func (NoopMetrics) Miss()                  {}
func (NoopMetrics) Evict(EvictReason)      {}
func (NoopMetrics) LockWait(time.Duration) {}
func (NoopMetrics) Update(error)           {}
func (NoopMetrics) Size(int)               {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}

// Stats is a point-in-time snapshot of cache counters, summed over shards.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Expired       uint64
	Deleted       uint64
	LockWaits     uint64
	Updates       uint64
	FailedUpdates uint64
}
