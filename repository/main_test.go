package repository

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/IvanBrykalov/resrepo/policy/lru"
	"github.com/IvanBrykalov/resrepo/weight"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// tickClock advances by one nanosecond on every read, so accesses are
// strictly ordered without sleeping.
type tickClock struct{ t atomic.Int64 }

func (c *tickClock) NowUnixNano() int64 { return c.t.Add(1) }

// resource is a test payload that counts its disposals.
type resource struct {
	name     string
	size     int64
	disposed atomic.Int32
}

func newResource(name string, size int64) *resource {
	return &resource{name: name, size: size}
}

func (r *resource) Close() error {
	r.disposed.Add(1)
	return nil
}

func sizeOf(r *resource) weight.Count { return weight.Count(r.size) }

// countingProvider serves resources of a fixed size and records every call
// and every resource it created.
type countingProvider struct {
	size  int64
	calls atomic.Int64

	mu      sync.Mutex
	created []*resource
}

func (p *countingProvider) Provide(_ context.Context, key string) (ProvideResult[*resource], error) {
	p.calls.Add(1)
	r := newResource(key, p.size)
	p.mu.Lock()
	p.created = append(p.created, r)
	p.mu.Unlock()
	return Provided(r), nil
}

type testRepo = Repository[string, *resource, weight.Count]

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRepo builds a repository bounded at max (evicting down to max)
// with a ticking clock and a discarded log.
func newTestRepo(t testing.TB, max int64, p Provider[string, *resource]) testRepo {
	t.Helper()
	if p == nil {
		p = &countingProvider{size: 1}
	}
	r, err := New(Options[string, *resource, weight.Count]{
		Provider: p,
		Weigher:  sizeOf,
		Policy:   lru.New[string, *resource, weight.Count](weight.Count(max), weight.Count(max)),
		Clock:    &tickClock{},
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// mustGet returns the lock for k or fails the test.
func mustGet(t testing.TB, r testRepo, k string) *Lock[string, *resource, weight.Count] {
	t.Helper()
	res, err := r.Get(context.Background(), k)
	if err != nil {
		t.Fatalf("Get(%q): %v", k, err)
	}
	if !res.Found() {
		t.Fatalf("Get(%q): want found, got %s (%s)", k, res.Kind(), res.Reason())
	}
	return res.Lock()
}

// storedWeight sums the weights of the current snapshot.
func storedWeight(r testRepo) weight.Count {
	var sum weight.Count
	for _, a := range r.AvailableResources() {
		sum = sum.Add(a.Info.Weight)
	}
	return sum
}
