package repository

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/resrepo/policy/lru"
	"github.com/IvanBrykalov/resrepo/weight"
)

// tracker remembers every resource handed to the repository.
type tracker struct {
	mu  sync.Mutex
	all []*resource
}

func (tr *tracker) track(r *resource) *resource {
	tr.mu.Lock()
	tr.all = append(tr.all, r)
	tr.mu.Unlock()
	return r
}

// A mixed Get/Add/Remove/RemoveAll/Cleanup workload on a small keyspace.
// Once it settles, the total must equal the stored sum and every resource
// must be either stored (never disposed) or gone (disposed exactly once).
// Should pass under `-race` without detector reports.
func TestRace_WeightAccountingAndDisposal(t *testing.T) {
	tr := &tracker{}
	prov := ProviderFunc[string, *resource](func(_ context.Context, k string) (ProvideResult[*resource], error) {
		n, _ := strconv.Atoi(k[2:])
		switch n % 10 {
		case 0:
			return NotFound[*resource]("missing"), nil
		case 1:
			time.Sleep(time.Millisecond)
		}
		return Provided(tr.track(newResource(k, int64(1+n%7)))), nil
	})
	r, err := New(Options[string, *resource, weight.Count]{
		Provider: prov,
		Weigher:  sizeOf,
		Policy:   lru.New[string, *resource, weight.Count](40, 30),
		Shards:   8,
		Clock:    &tickClock{},
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	workers := 4 * runtime.GOMAXPROCS(0)
	const keyspace = 64
	deadline := time.Now().Add(500 * time.Millisecond)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(int64(w)*9973 + 1))
			var held []*Lock[string, *resource, weight.Count]
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(rnd.Intn(keyspace))
				switch op := rnd.Intn(100); {
				case op < 10:
					r.Remove(k)
				case op < 20:
					r.Add(k, tr.track(newResource(k, int64(1+rnd.Intn(5)))))
				case op < 21:
					r.Cleanup()
				case op < 22:
					r.RemoveAll()
				default:
					res, err := r.Get(context.Background(), k)
					if err != nil {
						return err
					}
					if res.Found() {
						held = append(held, res.Lock())
					}
				}
				// Hold a few locks at a time so removals get deferred.
				for len(held) > 3 {
					i := rnd.Intn(len(held))
					held[i].Release()
					held = append(held[:i], held[i+1:]...)
				}
			}
			for _, l := range held {
				l.Release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, storedWeight(r), r.TotalWeight())
	assert.Equal(t, len(r.AvailableResources()), r.Len())

	stored := map[*resource]bool{}
	for _, a := range r.AvailableResources() {
		assert.False(t, a.Locked, "every lock was released")
		stored[a.Info.Resource] = true
	}
	tr.mu.Lock()
	for _, res := range tr.all {
		if stored[res] {
			assert.EqualValues(t, 0, res.disposed.Load(), "stored %s must not be disposed", res.name)
		} else {
			assert.EqualValues(t, 1, res.disposed.Load(), "gone %s must be disposed once", res.name)
		}
	}
	tr.mu.Unlock()

	require.NoError(t, r.Close())
	assert.Equal(t, weight.Count(0), r.TotalWeight())
	assert.Equal(t, 0, r.Len())
}

// One hundred goroutines Get the same cold key; the provider runs once.
func TestRace_GetSameKey(t *testing.T) {
	prov := &countingProvider{size: 1}
	r := newTestRepo(t, 1_000, prov)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Get(context.Background(), "hot")
			if err == nil && res.Found() {
				res.Lock().Release()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, prov.calls.Load())
	assert.Equal(t, weight.Count(1), r.TotalWeight())
}
