//go:build go1.18

package repository

import (
	"testing"

	"github.com/IvanBrykalov/resrepo/weight"
)

// Fuzz a sequential Add/Get/Remove program encoded as bytes.
// Each byte picks an operation (high bits) and a key (low bits).
// After every step the running total must match the stored sum.
func FuzzRepository_Ops(f *testing.F) {
	f.Add([]byte{0x00, 0x41, 0x82, 0xc3})
	f.Add([]byte{0x01, 0x01, 0x81, 0x41, 0xc1})
	f.Add([]byte("add-get-remove"))

	f.Fuzz(func(t *testing.T, prog []byte) {
		const limit = 256
		if len(prog) > limit {
			prog = prog[:limit]
		}

		r := newTestRepo(t, 12, &countingProvider{size: 3})
		var held []*Lock[string, *resource, weight.Count]

		for i, b := range prog {
			k := string(rune('a' + b&0x0f))
			switch b >> 6 {
			case 0:
				r.Add(k, newResource(k, int64(1+i%4)))
			case 1:
				held = append(held, mustGet(t, r, k))
			case 2:
				r.Remove(k)
			case 3:
				if len(held) > 0 {
					held[0].Release()
					held = held[1:]
				}
			}
			if got, want := r.TotalWeight(), storedWeight(r); got != want {
				t.Fatalf("step %d: total %v, stored sum %v", i, got, want)
			}
		}
		for _, l := range held {
			l.Release()
		}
		if got, want := r.TotalWeight(), storedWeight(r); got != want {
			t.Fatalf("after release: total %v, stored sum %v", got, want)
		}
	})
}
