package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextPow2(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{
		0:         1,
		1:         1,
		2:         2,
		3:         4,
		17:        32,
		1 << 40:   1 << 40,
		1<<63 + 1: 1 << 63,
	}
	for in, want := range cases {
		assert.Equal(t, want, NextPow2(in), "NextPow2(%d)", in)
	}
}

func TestShardCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, ShardCount(1))
	assert.Equal(t, 8, ShardCount(5))
	assert.Equal(t, MaxShards, ShardCount(10_000))

	auto := ShardCount(0)
	assert.True(t, IsPowerOfTwo(uint64(auto)))
	assert.LessOrEqual(t, auto, MaxShards)
}

func TestHasher_StableAndSpread(t *testing.T) {
	t.Parallel()

	h := NewHasher[string]()
	assert.Equal(t, h.Sum64("a"), h.Sum64("a"))

	seen := make(map[int]bool)
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		seen[ShardIndex(h.Sum64(k), 4)] = true
	}
	assert.Greater(t, len(seen), 1, "keys should land on more than one shard")
}
