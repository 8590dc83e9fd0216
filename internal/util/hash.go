// Package util holds the low-level helpers shared by the key tables:
// key hashing, shard sizing and cache-line padding.
//revive:disable:var-naming
package util

import (
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

var processSeed = maphash.MakeSeed()

// Hash maps a key to 64 bits for shard selection. Strings and byte arrays
// go through xxhash, integer keys through a splitmix64 finalizer, and every
// other comparable key through maphash with a per-process seed.
func Hash[K comparable](k K) uint64 { return hashSeeded(processSeed, k) }

// NewHasher returns a hasher like Hash whose maphash fallback uses a fresh
// seed, so unrelated tables do not share a collision pattern.
func NewHasher[K comparable]() func(K) uint64 {
	seed := maphash.MakeSeed()
	return func(k K) uint64 { return hashSeeded(seed, k) }
}

func hashSeeded[K comparable](seed maphash.Seed, k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return xxhash.Sum64String(v)
	case [16]byte:
		return xxhash.Sum64(v[:])
	case [32]byte:
		return xxhash.Sum64(v[:])
	case [64]byte:
		return xxhash.Sum64(v[:])
	case int:
		return mix64(uint64(v))
	case int64:
		return mix64(uint64(v))
	case int32:
		return mix64(uint64(v))
	case int16:
		return mix64(uint64(v))
	case int8:
		return mix64(uint64(v))
	case uint:
		return mix64(uint64(v))
	case uint64:
		return mix64(v)
	case uint32:
		return mix64(uint64(v))
	case uint16:
		return mix64(uint64(v))
	case uint8:
		return mix64(uint64(v))
	case uintptr:
		return mix64(uint64(v))
	}
	return maphash.Comparable(seed, k)
}

// mix64 spreads the entropy of sequential integers over all bits so that
// masking off the low bits still balances shards.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
