package util

import "runtime"

// MaxShards caps the shard count picked by ShardCount.
const MaxShards = 256

// ShardCount resolves a requested shard count. A non-positive request picks
// nextPow2(2*GOMAXPROCS); any result is rounded up to a power of two and
// clamped to [1..MaxShards].
func ShardCount(requested int) int {
	n := requested
	if n <= 0 {
		n = 2 * runtime.GOMAXPROCS(0)
	}
	p := n
	if !IsPowerOfTwo(uint64(p)) {
		p = int(NextPow2(uint64(p)))
	}
	if p > MaxShards {
		p = MaxShards
	}
	return p
}

// ShardIndex maps a hash onto [0..shards). shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}
