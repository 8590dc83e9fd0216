package repository

import (
	"time"

	"github.com/agilira/go-timecache"
)

// SystemClock reads the wall clock on every call.
type SystemClock struct{}

func (SystemClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// CachedClock reads a background-refreshed timestamp. Cheaper than
// SystemClock on hot paths at the cost of sub-millisecond staleness.
type CachedClock struct{}

func (CachedClock) NowUnixNano() int64 { return timecache.CachedTimeNano() }

var (
	_ Clock = SystemClock{}
	_ Clock = CachedClock{}
)
