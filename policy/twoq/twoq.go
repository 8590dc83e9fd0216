package twoq

import (
	"container/list"
	"slices"
	"sync"

	"github.com/IvanBrykalov/resrepo/policy"
)

// Policy is a scan-resistant, 2Q-style eviction policy over repository snapshots.
//
// Resident classes:
//   - probation (A1in): resources used at most once; evicted first
//   - protected (Am):   resources used repeatedly, or readmitted from ghosts
//
// Ghost A1out: keys only, remembers probation entries evicted recently. When such
// a key is fetched again it skips probation (second chance).
//
// Within each class the order is least-recently-used first; locked entries come last.
type Policy[K comparable, R any, W policy.Weight[W]] struct {
	limits sync.RWMutex
	max    W
	low    W

	mu        sync.Mutex
	capGhost  int
	ghostList *list.List          // MRU at Front() -> LRU at Back()
	ghostIdx  map[K]*list.Element // key -> element in ghostList (element.Value is K)
	promoted  map[K]struct{}      // readmitted ghosts that are still resident
}

// New constructs a 2Q policy with ceiling max, low-water mark low and room
// for capGhost ghost keys. Common choice: capGhost ≈ number of resident entries.
func New[K comparable, R any, W policy.Weight[W]](max, low W, capGhost int) *Policy[K, R, W] {
	if capGhost < 1 {
		capGhost = 1
	}
	p := &Policy[K, R, W]{
		capGhost:  capGhost,
		ghostList: list.New(),
		ghostIdx:  make(map[K]*list.Element),
		promoted:  make(map[K]struct{}),
	}
	p.SetLimits(max, low)
	return p
}

// SetLimits replaces both limits atomically; low is clamped to max.
func (p *Policy[K, R, W]) SetLimits(max, low W) {
	if low.Compare(max) > 0 {
		low = max
	}
	p.limits.Lock()
	p.max, p.low = max, low
	p.limits.Unlock()
}

// Limits returns the current ceiling and low-water mark.
func (p *Policy[K, R, W]) Limits() (max, low W) {
	p.limits.RLock()
	defer p.limits.RUnlock()
	return p.max, p.low
}

// IsNecessary reports whether total exceeds the ceiling.
func (p *Policy[K, R, W]) IsNecessary(total W) bool {
	max, _ := p.Limits()
	return total.Compare(max) > 0
}

// SelectForEviction applies the admission rules to the snapshot:
//   - a resident key found in ghosts is promoted to protected and its ghost dropped
//   - resources with a single use that are not promoted stay on probation
//   - probation is drained before protected; evicted probation keys become ghosts
func (p *Policy[K, R, W]) SelectForEviction(info policy.EvictionInfo[K, R, W]) []policy.AvailableResource[K, R, W] {
	max, low := p.Limits()

	p.mu.Lock()
	defer p.mu.Unlock()

	resident := make(map[K]struct{}, len(info.Available))
	var probation, protected, locked []policy.AvailableResource[K, R, W]
	for _, a := range info.Available {
		resident[a.Key] = struct{}{}
		if ge, ok := p.ghostIdx[a.Key]; ok {
			// Second chance: a ghost came back, skip probation from now on.
			p.ghostList.Remove(ge)
			delete(p.ghostIdx, a.Key)
			p.promoted[a.Key] = struct{}{}
		}
		switch {
		case a.Locked:
			locked = append(locked, a)
		case p.onProbation(a):
			probation = append(probation, a)
		default:
			protected = append(protected, a)
		}
	}
	// Promotion lasts only while the key stays resident.
	for k := range p.promoted {
		if _, ok := resident[k]; !ok {
			delete(p.promoted, k)
		}
	}

	if info.TotalWeight.Compare(max) <= 0 {
		return nil
	}

	byRecency := policy.ByRecency[K, R, W]
	slices.SortStableFunc(probation, byRecency)
	slices.SortStableFunc(protected, byRecency)
	slices.SortStableFunc(locked, byRecency)

	ordered := make([]policy.AvailableResource[K, R, W], 0, len(info.Available))
	ordered = append(ordered, probation...)
	ordered = append(ordered, protected...)
	ordered = append(ordered, locked...)

	selected := policy.TakeUntil(info.TotalWeight, low, ordered)
	for _, a := range selected {
		if !a.Locked && p.onProbation(a) {
			p.addGhost(a.Key)
		}
		delete(p.promoted, a.Key)
	}
	return selected
}

// Ghosts returns the number of remembered ghost keys.
func (p *Policy[K, R, W]) Ghosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ghostList.Len()
}

func (p *Policy[K, R, W]) onProbation(a policy.AvailableResource[K, R, W]) bool {
	if _, ok := p.promoted[a.Key]; ok {
		return false
	}
	return a.Usage.Count <= 1
}

// addGhost inserts/moves the key to MRU and enforces the ghost capacity.
func (p *Policy[K, R, W]) addGhost(k K) {
	if old := p.ghostIdx[k]; old != nil {
		p.ghostList.Remove(old)
	}
	p.ghostIdx[k] = p.ghostList.PushFront(k)

	for p.ghostList.Len() > p.capGhost {
		tail := p.ghostList.Back()
		if tail == nil {
			break
		}
		kk := tail.Value.(K)
		delete(p.ghostIdx, kk)
		p.ghostList.Remove(tail)
	}
}
