package twoq

import (
	"testing"

	"github.com/IvanBrykalov/resrepo/policy"
	"github.com/IvanBrykalov/resrepo/weight"
)

// --- test doubles (same shape as in LRU tests) ---

type snap = policy.AvailableResource[string, int, weight.Count]

func entry(key string, last, count int64, locked bool) snap {
	return snap{
		Key:    key,
		Info:   policy.ResourceInfo[int, weight.Count]{Resource: 1, Weight: 1},
		Usage:  policy.UsageStatistic{FirstAccess: last, LastAccess: last, Count: count},
		Locked: locked,
	}
}

func info(rs ...snap) policy.EvictionInfo[string, int, weight.Count] {
	return policy.EvictionInfo[string, int, weight.Count]{TotalWeight: weight.Count(len(rs)), Available: rs}
}

func selectedKeys(rs []snap) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Key)
	}
	return out
}

// --- tests ---

// A recently scanned single-use entry is evicted before an older hot one.
func TestTwoQ_ProbationBeforeProtected(t *testing.T) {
	t.Parallel()

	p := New[string, int, weight.Count](2, 2, 4)
	got := selectedKeys(p.SelectForEviction(info(
		entry("hot", 1, 10, false),
		entry("scan", 5, 1, false),
		entry("warm", 3, 2, false),
	)))

	if len(got) != 1 || got[0] != "scan" {
		t.Fatalf("want [scan], got %v", got)
	}
	if p.Ghosts() != 1 {
		t.Fatalf("evicted probation key must become a ghost, ghosts=%d", p.Ghosts())
	}
}

// Evicting from the protected class does NOT populate ghosts.
func TestTwoQ_ProtectedEvictionNoGhost(t *testing.T) {
	t.Parallel()

	p := New[string, int, weight.Count](1, 1, 4)
	got := selectedKeys(p.SelectForEviction(info(
		entry("a", 1, 3, false),
		entry("b", 2, 3, false),
	)))

	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("want [a], got %v", got)
	}
	if p.Ghosts() != 0 {
		t.Fatalf("protected evictions must not create ghosts, ghosts=%d", p.Ghosts())
	}
}

// A ghost that comes back bypasses probation (second chance).
func TestTwoQ_GhostReadmissionIsProtected(t *testing.T) {
	t.Parallel()

	p := New[string, int, weight.Count](2, 2, 4)

	// First pass: "x" is a single-use entry and gets evicted -> ghost.
	got := selectedKeys(p.SelectForEviction(info(
		entry("x", 1, 1, false),
		entry("h1", 2, 5, false),
		entry("h2", 3, 5, false),
	)))
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("first pass: want [x], got %v", got)
	}

	// Second pass: "x" is back with a single use; "y" is a fresh single-use entry.
	got = selectedKeys(p.SelectForEviction(info(
		entry("x", 4, 1, false),
		entry("y", 5, 1, false),
		entry("h1", 2, 5, false),
	)))
	if len(got) != 1 || got[0] != "y" {
		t.Fatalf("second pass: want [y] (x readmitted from ghosts), got %v", got)
	}
	if _, ok := p.ghostIdx["x"]; ok {
		t.Fatal("readmitted ghost must be dropped from A1out")
	}
}

// Ghost capacity is bounded; the oldest ghost is dropped first.
func TestTwoQ_GhostCapacity(t *testing.T) {
	t.Parallel()

	p := New[string, int, weight.Count](0, 0, 2)
	p.SelectForEviction(info(
		entry("a", 1, 1, false),
		entry("b", 2, 1, false),
		entry("c", 3, 1, false),
	))

	if p.Ghosts() != 2 {
		t.Fatalf("ghosts must be capped at 2, got %d", p.Ghosts())
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("oldest ghost must be dropped")
	}
}

// Locked entries are selected last, after both resident classes.
func TestTwoQ_LockedLast(t *testing.T) {
	t.Parallel()

	p := New[string, int, weight.Count](1, 1, 4)
	got := selectedKeys(p.SelectForEviction(info(
		entry("locked", 1, 1, true),
		entry("protected", 2, 4, false),
	)))

	if len(got) != 1 || got[0] != "protected" {
		t.Fatalf("want [protected], got %v", got)
	}
}

// Under the ceiling nothing is selected, but ghosts are still consulted.
func TestTwoQ_UnderCeiling(t *testing.T) {
	t.Parallel()

	p := New[string, int, weight.Count](10, 5, 4)
	if got := p.SelectForEviction(info(entry("a", 1, 1, false))); len(got) != 0 {
		t.Fatalf("want no eviction under the ceiling, got %v", selectedKeys(got))
	}
	if !p.IsNecessary(11) || p.IsNecessary(10) {
		t.Fatal("IsNecessary must compare strictly against the ceiling")
	}
}
