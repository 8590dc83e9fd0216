package repository

import (
	"sync"

	"github.com/IvanBrykalov/resrepo/internal/util"
)

// table is a sharded concurrent map with compare-and-swap style updates.
// Values are compared with ==, so V is expected to be a pointer or interface
// holding a pointer.
type table[K comparable, V comparable] struct {
	shards []*tableShard[K, V]
	mask   uint64
	hash   func(K) uint64
}

// tableShard is an independent partition with its own lock and map.
type tableShard[K comparable, V comparable] struct {
	mu sync.RWMutex
	m  map[K]V
	_  util.CacheLinePad
}

// newTable builds a table with n shards rounded up to a power of two.
func newTable[K comparable, V comparable](n int, hash func(K) uint64) *table[K, V] {
	n = util.ShardCount(n)
	t := &table[K, V]{shards: make([]*tableShard[K, V], n), mask: uint64(n - 1), hash: hash}
	for i := range t.shards {
		t.shards[i] = &tableShard[K, V]{m: make(map[K]V)}
	}
	return t
}

// shard picks a shard by hashing the key and masking with len-1.
func (t *table[K, V]) shard(k K) *tableShard[K, V] {
	return t.shards[t.hash(k)&t.mask]
}

func (t *table[K, V]) load(k K) (V, bool) {
	s := t.shard(k)
	s.mu.RLock()
	v, ok := s.m[k]
	s.mu.RUnlock()
	return v, ok
}

// putIfAbsent stores v unless k is present. It returns the value now
// associated with k and whether v was stored.
func (t *table[K, V]) putIfAbsent(k K, v V) (V, bool) {
	s := t.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[k]; ok {
		return cur, false
	}
	s.m[k] = v
	return v, true
}

// put stores v and returns the previous value, if any.
func (t *table[K, V]) put(k K, v V) (V, bool) {
	s := t.shard(k)
	s.mu.Lock()
	prev, ok := s.m[k]
	s.m[k] = v
	s.mu.Unlock()
	return prev, ok
}

// replace swaps old for v only if k currently maps to old.
func (t *table[K, V]) replace(k K, old, v V) bool {
	s := t.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[k]; !ok || cur != old {
		return false
	}
	s.m[k] = v
	return true
}

// removeIf deletes k only if it currently maps to old.
func (t *table[K, V]) removeIf(k K, old V) bool {
	s := t.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[k]; !ok || cur != old {
		return false
	}
	delete(s.m, k)
	return true
}

// update atomically rewrites the mapping for k. fn receives the current
// value and presence and returns the new value and whether to keep it.
func (t *table[K, V]) update(k K, fn func(cur V, ok bool) (V, bool)) {
	s := t.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[k]
	next, keep := fn(cur, ok)
	if keep {
		s.m[k] = next
	} else if ok {
		delete(s.m, k)
	}
}

// rangeAll calls fn for every mapping, one shard at a time. fn runs under
// the shard's read lock and must not touch the table.
func (t *table[K, V]) rangeAll(fn func(k K, v V)) {
	for _, s := range t.shards {
		s.mu.RLock()
		for k, v := range s.m {
			fn(k, v)
		}
		s.mu.RUnlock()
	}
}

func (t *table[K, V]) keys() []K {
	out := make([]K, 0, t.len())
	t.rangeAll(func(k K, _ V) { out = append(out, k) })
	return out
}

func (t *table[K, V]) values() []V {
	out := make([]V, 0, t.len())
	t.rangeAll(func(_ K, v V) { out = append(out, v) })
	return out
}

// len returns the number of mappings across all shards.
func (t *table[K, V]) len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}
