package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is 64 bytes on the amd64 and arm64 parts we run on.
const CacheLineSize = 64

// CacheLinePad fills a cache line between groups of hot fields.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// Uint64Line is an atomic counter that owns a whole cache line.
type Uint64Line struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Int64Line is the signed variant of Uint64Line.
type Int64Line struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte
}

// Both line types must be exactly CacheLineSize bytes.
var (
	_ [CacheLineSize - unsafe.Sizeof(Uint64Line{})]byte
	_ [unsafe.Sizeof(Uint64Line{}) - CacheLineSize]byte
	_ [CacheLineSize - unsafe.Sizeof(Int64Line{})]byte
	_ [unsafe.Sizeof(Int64Line{}) - CacheLineSize]byte
)
