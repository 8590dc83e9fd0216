package util

import (
	"math/bits"
	"runtime"
)

// MaxShards caps the automatic shard count.
const MaxShards = 256

// ShardCount turns a requested shard count into a power of two.
// Zero or negative requests get twice GOMAXPROCS, capped at MaxShards.
func ShardCount(requested int) int {
	if requested <= 0 {
		requested = min(2*max(runtime.GOMAXPROCS(0), 1), MaxShards)
	}
	return int(NextPow2(uint64(requested)))
}

// NextPow2 returns the smallest power of two >= x, with 0 mapping to 1.
// Values above 1<<63 clamp to 1<<63.
func NextPow2(x uint64) uint64 {
	switch {
	case x <= 1:
		return 1
	case x > 1<<63:
		return 1 << 63
	}
	return 1 << bits.Len64(x-1)
}

// IsPowerOfTwo reports whether x is a positive power of two.
func IsPowerOfTwo(x uint64) bool { return x != 0 && x&(x-1) == 0 }
