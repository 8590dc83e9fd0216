package repository

import (
	"sync/atomic"

	"github.com/IvanBrykalov/resrepo/policy"
)

// accumulator holds the running total weight. W is an arbitrary value type,
// so updates go through a pointer CAS loop instead of an atomic integer.
type accumulator[W policy.Weight[W]] struct {
	p atomic.Pointer[W]
}

func newAccumulator[W policy.Weight[W]]() *accumulator[W] {
	a := &accumulator[W]{}
	var zero W
	a.p.Store(&zero)
	return a
}

func (a *accumulator[W]) load() W { return *a.p.Load() }

func (a *accumulator[W]) add(w W) W {
	return a.apply(func(cur W) W { return cur.Add(w) })
}

func (a *accumulator[W]) sub(w W) W {
	return a.apply(func(cur W) W { return cur.Sub(w) })
}

func (a *accumulator[W]) apply(fn func(W) W) W {
	for {
		old := a.p.Load()
		next := fn(*old)
		if a.p.CompareAndSwap(old, &next) {
			return next
		}
	}
}
