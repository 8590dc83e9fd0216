// Package lru implements a weight-bounded LRU eviction policy.
package lru

import (
	"slices"
	"sync"

	"github.com/IvanBrykalov/resrepo/policy"
	"github.com/IvanBrykalov/resrepo/weight"
)

// Policy evicts least-recently-used resources once the total weight exceeds
// a ceiling, and keeps evicting until the total drops to a low-water mark.
// Limits may be changed at runtime (e.g. on config reload).
type Policy[K comparable, R any, W policy.Weight[W]] struct {
	mu  sync.RWMutex
	max W
	low W
}

// New returns an LRU policy with ceiling max and low-water mark low.
// A low mark above max is clamped to max.
func New[K comparable, R any, W policy.Weight[W]](max, low W) *Policy[K, R, W] {
	p := &Policy[K, R, W]{}
	p.SetLimits(max, low)
	return p
}

// SetLimits replaces both limits atomically.
func (p *Policy[K, R, W]) SetLimits(max, low W) {
	if low.Compare(max) > 0 {
		low = max
	}
	p.mu.Lock()
	p.max, p.low = max, low
	p.mu.Unlock()
}

// Limits returns the current ceiling and low-water mark.
func (p *Policy[K, R, W]) Limits() (max, low W) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.max, p.low
}

// IsNecessary reports whether total exceeds the ceiling.
func (p *Policy[K, R, W]) IsNecessary(total W) bool {
	max, _ := p.Limits()
	return total.Compare(max) > 0
}

// SelectForEviction orders the snapshot by recency (unlocked first) and
// returns the shortest prefix that brings the total to the low-water mark.
func (p *Policy[K, R, W]) SelectForEviction(info policy.EvictionInfo[K, R, W]) []policy.AvailableResource[K, R, W] {
	max, low := p.Limits()
	if info.TotalWeight.Compare(max) <= 0 {
		return nil
	}
	ordered := slices.Clone(info.Available)
	slices.SortStableFunc(ordered, policy.ByRecency[K, R, W])
	return policy.TakeUntil(info.TotalWeight, low, ordered)
}

var _ policy.EvictionPolicy[string, any, weight.Count] = (*Policy[string, any, weight.Count])(nil)
