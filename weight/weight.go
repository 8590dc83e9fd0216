// Package weight provides concrete resource weights for the repository.
//
// Both types are plain values: adding or subtracting never mutates the
// receiver, and the zero value is the additive identity.
package weight

import (
	"cmp"
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Space is an amount of disk or memory space in bytes.
type Space int64

// Common space units.
const (
	Byte Space = 1
	KiB        = 1024 * Byte
	MiB        = 1024 * KiB
	GiB        = 1024 * MiB
)

// ParseSpace parses a human readable size ("512MiB", "2 GB", "1048576").
// Sizes above math.MaxInt64 bytes fail with an error wrapping
// strconv.ErrRange.
func ParseSpace(s string) (Space, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("weight: parse %q: %w", s, strconv.ErrRange)
	}
	return Space(n), nil
}

// Add returns s+o.
func (s Space) Add(o Space) Space { return s + o }

// Sub returns s-o.
func (s Space) Sub(o Space) Space { return s - o }

// Compare returns -1, 0 or +1 depending on whether s is less than,
// equal to, or greater than o.
func (s Space) Compare(o Space) int { return cmp.Compare(s, o) }

// Float64 reports the amount in bytes.
func (s Space) Float64() float64 { return float64(s) }

// String formats the amount with IEC units, e.g. "1.5 MiB".
func (s Space) String() string {
	if s < 0 {
		return "-" + humanize.IBytes(uint64(-s))
	}
	return humanize.IBytes(uint64(s))
}

// Count weighs every resource as one unit; use it to cap the number of
// resident resources rather than their size.
type Count int64

// Add returns c+o.
func (c Count) Add(o Count) Count { return c + o }

// Sub returns c-o.
func (c Count) Sub(o Count) Count { return c - o }

// Compare orders counts numerically.
func (c Count) Compare(o Count) int { return cmp.Compare(c, o) }

// Float64 reports the count.
func (c Count) Float64() float64 { return float64(c) }

func (c Count) String() string { return strconv.FormatInt(int64(c), 10) }

// One is a weigher that assigns Count(1) to any resource.
func One[R any](R) Count { return 1 }
