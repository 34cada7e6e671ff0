// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "hash/maphash"

// Hasher hashes keys of any comparable type with a per-instance random seed,
// so two caches never share a shard layout.
type Hasher[K comparable] struct {
	seed maphash.Seed
}

// NewHasher returns a Hasher with a fresh seed.
func NewHasher[K comparable]() Hasher[K] {
	return Hasher[K]{seed: maphash.MakeSeed()}
}

// Sum64 returns the 64-bit hash of k.
func (h Hasher[K]) Sum64(k K) uint64 {
	return maphash.Comparable(h.seed, k)
}
