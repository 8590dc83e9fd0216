package main

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/resrepo/repository"
	"github.com/IvanBrykalov/resrepo/weight"
)

type workloadOptions struct {
	Workers  int
	Duration time.Duration
	Keys     int
	ZipfS    float64
	ZipfV    float64
	Seed     int64

	GetPct    int
	RemovePct int
	Hold      time.Duration

	Latency     time.Duration
	FailRate    float64
	MissingRate float64
	MaxFetches  int
	MinSize     weight.Space
	MaxSize     weight.Space
}

type workloadResult struct {
	Ops       uint64
	Gets      uint64
	Found     uint64
	NotFound  uint64
	Failed    uint64
	Errors    uint64
	Adds      uint64
	Rejected  uint64
	Removes   uint64
	Immediate uint64
	Elapsed   time.Duration
}

type archiveRepo = repository.Repository[string, *archive, weight.Space]

// runWorkload drives repo from opt.Workers goroutines until opt.Duration
// elapses or ctx is cancelled.
func runWorkload(ctx context.Context, repo archiveRepo, src *archiveSource, opt workloadOptions) (workloadResult, error) {
	var (
		ops, gets, found, notFound, failed, errs atomic.Uint64
		adds, rejected, removes, immediate        atomic.Uint64
	)

	ctx, cancel := context.WithTimeout(ctx, opt.Duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opt.Workers; w++ {
		g.Go(func() error {
			// rand.Rand is not safe for concurrent use.
			rnd := rand.New(rand.NewSource(opt.Seed + int64(w)*9973))
			zipf := rand.NewZipf(rnd, opt.ZipfS, opt.ZipfV, uint64(opt.Keys-1))
			nextKey := func() string { return "plugin-" + strconv.FormatUint(zipf.Uint64(), 10) }

			for ctx.Err() == nil {
				ops.Add(1)
				roll := rnd.Intn(100)
				switch {
				case roll < opt.GetPct:
					gets.Add(1)
					res, err := repo.Get(ctx, nextKey())
					if err != nil {
						// Cancellation at the deadline is expected.
						if ctx.Err() == nil {
							errs.Add(1)
						}
						continue
					}
					switch res.Kind() {
					case repository.KindFound:
						found.Add(1)
						if opt.Hold > 0 {
							time.Sleep(opt.Hold)
						}
						res.Lock().Release()
					case repository.KindNotFound:
						notFound.Add(1)
					case repository.KindFailed:
						failed.Add(1)
					}
				case roll < opt.GetPct+opt.RemovePct:
					removes.Add(1)
					if repo.Remove(nextKey()) {
						immediate.Add(1)
					}
				default:
					adds.Add(1)
					k := nextKey()
					if !repo.Add(k, src.newArchive(k)) {
						rejected.Add(1)
					}
				}
			}
			return nil
		})
	}
	err := g.Wait()

	return workloadResult{
		Ops:       ops.Load(),
		Gets:      gets.Load(),
		Found:     found.Load(),
		NotFound:  notFound.Load(),
		Failed:    failed.Load(),
		Errors:    errs.Load(),
		Adds:      adds.Load(),
		Rejected:  rejected.Load(),
		Removes:   removes.Load(),
		Immediate: immediate.Load(),
		Elapsed:   time.Since(start),
	}, err
}
