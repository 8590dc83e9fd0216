package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/resrepo/repository"
	"github.com/IvanBrykalov/resrepo/weight"
)

// archive stands in for a downloaded and unpacked plugin distribution.
type archive struct {
	key      string
	size     weight.Space
	disposed atomic.Bool
	tally    *tally
}

func (a *archive) Close() error {
	if !a.disposed.CompareAndSwap(false, true) {
		a.tally.doubleDisposals.Add(1)
		return nil
	}
	a.tally.disposed.Add(1)
	return nil
}

// tally counts archive lifecycles across the run.
type tally struct {
	created         atomic.Int64
	disposed        atomic.Int64
	doubleDisposals atomic.Int64
}

type archiveSource struct {
	latency     time.Duration
	failRate    float64
	missingRate float64
	minSize     weight.Space
	maxSize     weight.Space

	fetches *semaphore.Weighted
	tally   *tally

	mu  sync.Mutex
	rnd *rand.Rand
}

func newArchiveSource(opt workloadOptions, t *tally) *archiveSource {
	return &archiveSource{
		latency:     opt.Latency,
		failRate:    opt.FailRate,
		missingRate: opt.MissingRate,
		minSize:     opt.MinSize,
		maxSize:     opt.MaxSize,
		fetches:     semaphore.NewWeighted(int64(opt.MaxFetches)),
		tally:       t,
		rnd:         rand.New(rand.NewSource(opt.Seed ^ 0x5eed)),
	}
}

// sizeOf derives a stable size from the key so refetches weigh the same.
func (s *archiveSource) sizeOf(key string) weight.Space {
	span := uint64(s.maxSize - s.minSize)
	if span == 0 {
		return s.minSize
	}
	return s.minSize + weight.Space(xxhash.Sum64String(key)%span)
}

func (s *archiveSource) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

func (s *archiveSource) newArchive(key string) *archive {
	s.tally.created.Add(1)
	return &archive{key: key, size: s.sizeOf(key), tally: s.tally}
}

// Provide simulates a bounded download.
func (s *archiveSource) Provide(ctx context.Context, key string) (repository.ProvideResult[*archive], error) {
	if err := s.fetches.Acquire(ctx, 1); err != nil {
		return repository.ProvideResult[*archive]{}, err
	}
	defer s.fetches.Release(1)

	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return repository.ProvideResult[*archive]{}, ctx.Err()
		case <-t.C:
		}
	}

	switch p := s.roll(); {
	case p < s.missingRate:
		return repository.NotFound[*archive](fmt.Sprintf("%s is not published", key)), nil
	case p < s.missingRate+s.failRate:
		return repository.Failed[*archive]("download interrupted", fmt.Errorf("fetch %s: connection reset", key)), nil
	}
	return repository.Provided(s.newArchive(key)), nil
}

func archiveWeight(a *archive) weight.Space { return a.size }
