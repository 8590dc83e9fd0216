package repository

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/resrepo/internal/singleflight"
	"github.com/IvanBrykalov/resrepo/policy"
)

// entry is the per-key state: *fetchingEntry or *storedEntry.
type entry[K comparable, R any, W policy.Weight[W]] interface {
	sealed()
}

// fetchOutcome is what a fetch leader publishes to its followers.
type fetchOutcome[R any] struct {
	result ProvideResult[R]
	// retry tells followers to re-read the table: the leader gave up
	// (cancelled) or its placeholder was displaced before installation.
	retry bool
}

// fetchingEntry is a placeholder for an in-flight provider call.
type fetchingEntry[K comparable, R any, W policy.Weight[W]] struct {
	call *singleflight.Call[fetchOutcome[R]]
	// resolved names the stored entry that replaced this placeholder.
	// It is set before the table swap.
	resolved atomic.Pointer[storedEntry[K, R, W]]
}

func (*fetchingEntry[K, R, W]) sealed() {}

// storedEntry is an accepted resource with its lock set.
type storedEntry[K comparable, R any, W policy.Weight[W]] struct {
	key  K
	info policy.ResourceInfo[R, W]

	// ---- guarded by mu ----
	mu      sync.Mutex
	locks   map[uint64]struct{}
	usage   policy.UsageStatistic
	removed bool
}

func (*storedEntry[K, R, W]) sealed() {}

func newStoredEntry[K comparable, R any, W policy.Weight[W]](k K, info policy.ResourceInfo[R, W], now int64) *storedEntry[K, R, W] {
	return &storedEntry[K, R, W]{
		key:   k,
		info:  info,
		locks: make(map[uint64]struct{}),
		usage: policy.UsageStatistic{FirstAccess: now, LastAccess: now},
	}
}

// attach registers lock id and bumps usage. It fails once removal began.
func (s *storedEntry[K, R, W]) attach(id uint64, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return false
	}
	s.locks[id] = struct{}{}
	s.usage.LastAccess = now
	s.usage.Count++
	return true
}

// detach drops lock id and reports whether the entry is now idle.
func (s *storedEntry[K, R, W]) detach(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, id)
	return len(s.locks) == 0 && !s.removed
}

// markRemoved flips removed if the entry is unlocked and not yet removed.
func (s *storedEntry[K, R, W]) markRemoved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed || len(s.locks) > 0 {
		return false
	}
	s.removed = true
	return true
}

// snapshot returns usage and lock state, or ok=false once removed.
func (s *storedEntry[K, R, W]) snapshot() (u policy.UsageStatistic, locked, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, len(s.locks) > 0, !s.removed
}

func (s *storedEntry[K, R, W]) isRemoved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}

// pendingRemoval is a deferred removal filed against one entry instance.
type pendingRemoval[K comparable, R any, W policy.Weight[W]] struct {
	target entry[K, R, W]
	reason EvictReason
}

// matches reports whether the request applies to stored entry s, either
// directly or through the placeholder s replaced.
func (p *pendingRemoval[K, R, W]) matches(s *storedEntry[K, R, W]) bool {
	switch t := p.target.(type) {
	case *storedEntry[K, R, W]:
		return t == s
	case *fetchingEntry[K, R, W]:
		return t.resolved.Load() == s
	}
	return false
}
