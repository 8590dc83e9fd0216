// Package policy defines the snapshot types handed to eviction policies and
// the EvictionPolicy contract the repository consults after mutations.
package policy

// Weight is an additive, totally ordered cost. Implementations must be pure
// values: Add and Sub return a new value and never mutate the receiver.
// The zero value of W must be the additive identity.
type Weight[W any] interface {
	Add(W) W
	Sub(W) W
	// Compare returns a negative number, zero or a positive number when the
	// receiver is less than, equal to or greater than the argument.
	Compare(W) int
}

// ResourceInfo pairs a resource with the weight computed once at insertion.
type ResourceInfo[R any, W Weight[W]] struct {
	Resource R
	Weight   W
}

// UsageStatistic records how a stored resource has been used.
// Times are UnixNano values from the repository clock.
type UsageStatistic struct {
	FirstAccess int64
	LastAccess  int64
	Count       int64
}

// AvailableResource is a point-in-time view of one stored entry.
// Entries that are still being fetched never appear here.
type AvailableResource[K comparable, R any, W Weight[W]] struct {
	Key    K
	Info   ResourceInfo[R, W]
	Usage  UsageStatistic
	Locked bool
}

// EvictionInfo is the snapshot passed to SelectForEviction.
type EvictionInfo[K comparable, R any, W Weight[W]] struct {
	TotalWeight W
	Available   []AvailableResource[K, R, W]
}

// EvictionPolicy decides when the repository should shrink and what to drop.
//
// Concurrency: the repository never runs two eviction passes at once, but
// IsNecessary may be called concurrently with a pass.
//
// Semantics:
//   - IsNecessary is a cheap gate evaluated after every mutation.
//   - SelectForEviction may return locked entries; removing them is deferred
//     until their last lock is released. Policies should prefer unlocked
//     entries since those free weight immediately.
type EvictionPolicy[K comparable, R any, W Weight[W]] interface {
	IsNecessary(total W) bool
	SelectForEviction(info EvictionInfo[K, R, W]) []AvailableResource[K, R, W]
}

// ByRecency orders candidates for eviction: unlocked before locked, then
// least recently used first, then least frequently used first.
func ByRecency[K comparable, R any, W Weight[W]](a, b AvailableResource[K, R, W]) int {
	if a.Locked != b.Locked {
		if a.Locked {
			return 1
		}
		return -1
	}
	switch {
	case a.Usage.LastAccess < b.Usage.LastAccess:
		return -1
	case a.Usage.LastAccess > b.Usage.LastAccess:
		return 1
	case a.Usage.Count < b.Usage.Count:
		return -1
	case a.Usage.Count > b.Usage.Count:
		return 1
	}
	return 0
}

// TakeUntil walks ordered candidates and collects them until the projected
// total drops to low or below. Locked candidates are counted as freed since
// they are removed as soon as they are released.
func TakeUntil[K comparable, R any, W Weight[W]](total, low W, ordered []AvailableResource[K, R, W]) []AvailableResource[K, R, W] {
	var out []AvailableResource[K, R, W]
	for _, c := range ordered {
		if total.Compare(low) <= 0 {
			break
		}
		out = append(out, c)
		total = total.Sub(c.Info.Weight)
	}
	return out
}
