package repository

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/resrepo/internal/singleflight"
	"github.com/IvanBrykalov/resrepo/internal/util"
	"github.com/IvanBrykalov/resrepo/policy"
)

// repo is the Repository implementation.
type repo[K comparable, R any, W policy.Weight[W]] struct {
	entries *table[K, entry[K, R, W]]
	pending *table[K, *pendingRemoval[K, R, W]]
	total   *accumulator[W]
	cleaner *cleaner

	opt    Options[K, R, W]
	log    *slog.Logger
	closed atomic.Bool

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_         util.CacheLinePad
	lockIDs   util.Uint64Line
	stored    util.Int64Line
	hits      util.Uint64Line
	misses    util.Uint64Line
	fetches   util.Uint64Line
	evictions util.Uint64Line
	disposals util.Uint64Line
}

// New constructs a repository with the provided Options.
// Provider, Weigher and Policy are required; see Options for defaults.
func New[K comparable, R any, W policy.Weight[W]](opt Options[K, R, W]) (Repository[K, R, W], error) {
	switch {
	case opt.Provider == nil:
		return nil, newErrInvalidOptions("Provider", "must not be nil")
	case opt.Weigher == nil:
		return nil, newErrInvalidOptions("Weigher", "must not be nil")
	case opt.Policy == nil:
		return nil, newErrInvalidOptions("Policy", "must not be nil")
	case opt.Shards < 0:
		return nil, newErrInvalidOptions("Shards", "must not be negative")
	}
	if opt.Disposer == nil {
		opt.Disposer = closeDisposer[R]
	}
	if opt.Hasher == nil {
		opt.Hasher = util.NewHasher[K]()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Clock == nil {
		opt.Clock = SystemClock{}
	}
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}

	r := &repo[K, R, W]{
		entries: newTable[K, entry[K, R, W]](opt.Shards, opt.Hasher),
		pending: newTable[K, *pendingRemoval[K, R, W]](opt.Shards, opt.Hasher),
		total:   newAccumulator[W](),
		opt:     opt,
		log:     log.With(slog.String("component", "resrepo")),
	}
	r.cleaner = newCleaner(r.runCleanup)
	return r, nil
}

// ---- Get ----

func (r *repo[K, R, W]) Get(ctx context.Context, k K) (Result[K, R, W], error) {
	missed := false
	for {
		if r.closed.Load() {
			return Result[K, R, W]{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Result[K, R, W]{}, err
		}

		cur, ok := r.entries.load(k)
		if !ok {
			f := &fetchingEntry[K, R, W]{call: singleflight.NewCall[fetchOutcome[R]]()}
			if _, won := r.entries.putIfAbsent(k, f); !won {
				continue
			}
			if !missed {
				missed = true
				r.miss()
			}
			res, retry, err := r.lead(ctx, k, f)
			if retry {
				continue
			}
			return res, err
		}

		switch e := cur.(type) {
		case *storedEntry[K, R, W]:
			l := r.tryLock(e)
			if l == nil {
				// Removal began on this instance; re-read.
				runtime.Gosched()
				continue
			}
			if !missed {
				r.hits.Add(1)
				r.opt.Metrics.Hit()
			}
			return found(l), nil

		case *fetchingEntry[K, R, W]:
			if !missed {
				missed = true
				r.miss()
			}
			out, err := e.call.Wait(ctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Result[K, R, W]{}, ctxErr
				}
				return Result[K, R, W]{}, err
			}
			if out.retry || out.result.Kind() == KindFound {
				continue
			}
			return fromProvide[K, R, W](out.result), nil
		}
	}
}

func (r *repo[K, R, W]) miss() {
	r.misses.Add(1)
	r.opt.Metrics.Miss()
}

// lead runs the provider for placeholder f and publishes the outcome to
// its followers. retry asks the caller to re-read the table.
func (r *repo[K, R, W]) lead(ctx context.Context, k K, f *fetchingEntry[K, R, W]) (res Result[K, R, W], retry bool, err error) {
	var (
		lock      *Lock[K, R, W]
		cancelled bool
		start     = time.Now()
	)
	r.fetches.Add(1)

	out, err := f.call.Run(func() (out fetchOutcome[R], err error) {
		// The placeholder must leave the table before followers wake up.
		defer func() {
			if p := recover(); p != nil {
				r.dropPlaceholder(k, f)
				r.log.Error("provider panicked", slog.Any("key", k), slog.Any("panic", p))
				out, err = fetchOutcome[R]{}, newErrProviderPanic(k, p)
			}
		}()

		pr, perr := r.opt.Provider.Provide(ctx, k)
		if perr != nil {
			r.dropPlaceholder(k, f)
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(perr, ctxErr) {
				cancelled = true
				return fetchOutcome[R]{retry: true}, nil
			}
			return fetchOutcome[R]{}, newErrProvider(k, perr)
		}
		if pr.Kind() != KindFound {
			r.dropPlaceholder(k, f)
			return fetchOutcome[R]{result: pr}, nil
		}

		l, ierr := r.install(k, f, pr.Resource())
		if ierr != nil {
			r.dropPlaceholder(k, f)
			return fetchOutcome[R]{}, ierr
		}
		if l == nil {
			return fetchOutcome[R]{retry: true}, nil
		}
		lock = l
		return fetchOutcome[R]{result: pr}, nil
	})

	switch {
	case cancelled:
		r.opt.Metrics.Load(LoadError, time.Since(start))
		return Result[K, R, W]{}, false, ctx.Err()
	case err != nil:
		r.opt.Metrics.Load(LoadError, time.Since(start))
		return Result[K, R, W]{}, false, err
	case out.retry:
		return Result[K, R, W]{}, true, nil
	}
	r.opt.Metrics.Load(out.result.outcome(), time.Since(start))
	if lock == nil {
		return fromProvide[K, R, W](out.result), false, nil
	}

	// A Close that raced with the fetch must still see this entry go.
	if r.closed.Load() {
		r.remove(k, EvictExplicit)
	}
	r.maybeCleanup()
	return found(lock), false, nil
}

// install turns a successful fetch into a stored entry that already holds
// the leader's lock. It returns nil when the placeholder was displaced.
func (r *repo[K, R, W]) install(k K, f *fetchingEntry[K, R, W], res R) (*Lock[K, R, W], error) {
	w, err := r.weigh(k, res)
	if err != nil {
		r.dispose(k, res, EvictRejected)
		return nil, err
	}

	now := r.opt.Clock.NowUnixNano()
	s := newStoredEntry(k, policy.ResourceInfo[R, W]{Resource: res, Weight: w}, now)
	id := r.lockIDs.Add(1)
	s.locks[id] = struct{}{}
	s.usage.Count = 1

	// Weight goes in before the entry is visible so a racing removal can
	// never drive the total below the true sum. Until the swap the total
	// over-counts by w; eviction passes size themselves from their snapshot.
	r.total.add(w)
	f.resolved.Store(s)
	if !r.entries.replace(k, f, s) {
		f.resolved.Store(nil)
		r.total.sub(w)
		r.dispose(k, res, EvictReplaced)
		return nil, nil
	}
	r.stored.Add(1)
	r.retarget(k, f, s)
	r.reportSize()
	return &Lock[K, R, W]{repo: r, entry: s, id: id, lockedAt: now}, nil
}

// weigh calls the Weigher, turning a panic into a coded error.
func (r *repo[K, R, W]) weigh(k K, res R) (w W, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("weigher panicked", slog.Any("key", k), slog.Any("panic", p))
			err = newErrProviderPanic(k, p)
		}
	}()
	return r.opt.Weigher(res), nil
}

func (r *repo[K, R, W]) dropPlaceholder(k K, f *fetchingEntry[K, R, W]) {
	r.entries.removeIf(k, f)
	r.unqueueTarget(k, f)
}

func (r *repo[K, R, W]) tryLock(s *storedEntry[K, R, W]) *Lock[K, R, W] {
	id := r.lockIDs.Add(1)
	now := r.opt.Clock.NowUnixNano()
	if !s.attach(id, now) {
		return nil
	}
	return &Lock[K, R, W]{repo: r, entry: s, id: id, lockedAt: now}
}

// release is called once per Lock.
func (r *repo[K, R, W]) release(l *Lock[K, R, W]) {
	s := l.entry
	if !s.detach(l.id) {
		return
	}
	p, ok := r.pending.load(s.key)
	if !ok || !p.matches(s) {
		return
	}
	// A new lock may have attached meanwhile; the request then stays queued.
	if r.tryRemoveStored(s, p.reason) {
		r.log.Debug("deferred removal completed", slog.Any("key", s.key), slog.String("reason", p.reason.String()))
	}
}

// ---- Add ----

func (r *repo[K, R, W]) Add(k K, res R) bool {
	if r.closed.Load() {
		r.dispose(k, res, EvictRejected)
		return false
	}
	if _, ok := r.entries.load(k); ok {
		r.dispose(k, res, EvictRejected)
		return false
	}
	w, err := r.weigh(k, res)
	if err != nil {
		r.dispose(k, res, EvictRejected)
		return false
	}

	s := newStoredEntry(k, policy.ResourceInfo[R, W]{Resource: res, Weight: w}, r.opt.Clock.NowUnixNano())
	r.total.add(w)
	if _, won := r.entries.putIfAbsent(k, s); !won {
		r.total.sub(w)
		r.dispose(k, res, EvictRejected)
		return false
	}
	r.stored.Add(1)
	r.reportSize()

	// Close may have emptied the table between the first check and the
	// insert; the entry must not outlive it.
	if r.closed.Load() {
		r.remove(k, EvictExplicit)
		return false
	}
	r.maybeCleanup()
	return true
}

// ---- Remove ----

func (r *repo[K, R, W]) Remove(k K) bool {
	return r.RemoveWithOutcome(k) == OutcomeRemoved
}

func (r *repo[K, R, W]) RemoveWithOutcome(k K) RemoveOutcome {
	out := r.remove(k, EvictExplicit)
	r.maybeCleanup()
	return out
}

func (r *repo[K, R, W]) RemoveAll() {
	removed := false
	for _, k := range r.entries.keys() {
		if r.remove(k, EvictExplicit) == OutcomeRemoved {
			removed = true
		}
	}
	if removed {
		r.maybeCleanup()
	}
}

// remove removes whatever entry k maps to, or queues a deferred removal.
// It never triggers a cleanup pass.
func (r *repo[K, R, W]) remove(k K, reason EvictReason) RemoveOutcome {
	for {
		cur, ok := r.entries.load(k)
		if !ok {
			return OutcomeNotPresent
		}
		switch e := cur.(type) {
		case *storedEntry[K, R, W]:
			if out, gone := r.removeStored(e, reason); !gone {
				return out
			}
		case *fetchingEntry[K, R, W]:
			r.enqueue(k, e, reason)
			if now, ok := r.entries.load(k); ok && now == cur {
				r.log.Debug("removal deferred until fetch completes", slog.Any("key", k))
				return OutcomeDeferred
			}
			// Resolved or dropped meanwhile; act on whatever is there now.
			r.unqueueTarget(k, e)
		}
	}
}

// removeStored removes s now or queues it. gone reports that s was removed
// by someone else and the caller should re-read the table.
func (r *repo[K, R, W]) removeStored(s *storedEntry[K, R, W], reason EvictReason) (out RemoveOutcome, gone bool) {
	if r.tryRemoveStored(s, reason) {
		return OutcomeRemoved, false
	}
	if s.isRemoved() {
		return 0, true
	}
	r.enqueue(s.key, s, reason)
	// The last lock may have gone between the first attempt and the enqueue.
	if r.tryRemoveStored(s, reason) {
		return OutcomeRemoved, false
	}
	if s.isRemoved() {
		r.unqueueTarget(s.key, s)
		return 0, true
	}
	r.log.Debug("removal deferred until unlocked", slog.Any("key", s.key), slog.String("reason", reason.String()))
	return OutcomeDeferred, false
}

// tryRemoveStored removes and disposes s if it is idle and not yet removed.
func (r *repo[K, R, W]) tryRemoveStored(s *storedEntry[K, R, W], reason EvictReason) bool {
	if !s.markRemoved() {
		return false
	}
	r.entries.removeIf(s.key, s)
	r.pending.update(s.key, func(cur *pendingRemoval[K, R, W], ok bool) (*pendingRemoval[K, R, W], bool) {
		return cur, ok && !cur.matches(s)
	})
	r.total.sub(s.info.Weight)
	r.stored.Add(-1)
	r.dispose(s.key, s.info.Resource, reason)
	r.reportSize()
	return true
}

// ---- deferred-removal queue ----

// enqueue files a removal against target. An existing request for a
// different instance is kept only while that instance is still live.
func (r *repo[K, R, W]) enqueue(k K, target entry[K, R, W], reason EvictReason) {
	req := &pendingRemoval[K, R, W]{target: target, reason: reason}
	r.pending.update(k, func(cur *pendingRemoval[K, R, W], ok bool) (*pendingRemoval[K, R, W], bool) {
		if ok && cur.target != target && r.isLive(k, cur) {
			return cur, true
		}
		return req, true
	})
}

// isLive reports whether p targets the entry currently stored under k.
func (r *repo[K, R, W]) isLive(k K, p *pendingRemoval[K, R, W]) bool {
	cur, ok := r.entries.load(k)
	if !ok {
		return false
	}
	if p.target == cur {
		return true
	}
	s, isStored := cur.(*storedEntry[K, R, W])
	return isStored && p.matches(s)
}

// unqueueTarget drops the request filed against target, if any.
func (r *repo[K, R, W]) unqueueTarget(k K, target entry[K, R, W]) {
	r.pending.update(k, func(cur *pendingRemoval[K, R, W], ok bool) (*pendingRemoval[K, R, W], bool) {
		return cur, ok && cur.target != target
	})
}

// retarget rewrites a request filed against placeholder f to its stored
// successor s.
func (r *repo[K, R, W]) retarget(k K, f *fetchingEntry[K, R, W], s *storedEntry[K, R, W]) {
	r.pending.update(k, func(cur *pendingRemoval[K, R, W], ok bool) (*pendingRemoval[K, R, W], bool) {
		if ok && cur.target == entry[K, R, W](f) {
			return &pendingRemoval[K, R, W]{target: s, reason: cur.reason}, true
		}
		return cur, ok
	})
}

// ---- queries ----

func (r *repo[K, R, W]) Has(k K) bool {
	_, ok := r.entries.load(k)
	return ok
}

func (r *repo[K, R, W]) IsLockedOrBeingProvided(k K) bool {
	cur, ok := r.entries.load(k)
	if !ok {
		return false
	}
	switch e := cur.(type) {
	case *fetchingEntry[K, R, W]:
		return true
	case *storedEntry[K, R, W]:
		_, locked, _ := e.snapshot()
		return locked
	}
	return false
}

func (r *repo[K, R, W]) Keys() []K { return r.entries.keys() }

func (r *repo[K, R, W]) AvailableResources() []policy.AvailableResource[K, R, W] {
	cands := r.candidates()
	out := make([]policy.AvailableResource[K, R, W], len(cands))
	for i, c := range cands {
		out[i] = c.view
	}
	return out
}

// candidate pairs a snapshot with the instance it was taken from, so that
// eviction acts on exactly what the policy saw.
type candidate[K comparable, R any, W policy.Weight[W]] struct {
	view  policy.AvailableResource[K, R, W]
	entry *storedEntry[K, R, W]
}

func (r *repo[K, R, W]) candidates() []candidate[K, R, W] {
	vals := r.entries.values()
	out := make([]candidate[K, R, W], 0, len(vals))
	for _, v := range vals {
		s, ok := v.(*storedEntry[K, R, W])
		if !ok {
			continue
		}
		usage, locked, live := s.snapshot()
		if !live {
			continue
		}
		out = append(out, candidate[K, R, W]{
			view: policy.AvailableResource[K, R, W]{
				Key:    s.key,
				Info:   s.info,
				Usage:  usage,
				Locked: locked,
			},
			entry: s,
		})
	}
	return out
}

func (r *repo[K, R, W]) TotalWeight() W { return r.total.load() }

func (r *repo[K, R, W]) Len() int { return int(r.stored.Load()) }

func (r *repo[K, R, W]) Stats() Stats {
	skipped, passes := r.cleaner.stats()
	return Stats{
		Hits:            r.hits.Load(),
		Misses:          r.misses.Load(),
		Fetches:         r.fetches.Load(),
		Evictions:       r.evictions.Load(),
		Disposals:       r.disposals.Load(),
		CleanupPasses:   passes,
		SkippedCleanups: skipped,
		Entries:         r.Len(),
	}
}

// Close marks the repository closed and removes every entry. Locked
// resources are disposed when their last lock is released.
func (r *repo[K, R, W]) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.RemoveAll()
	return nil
}

// ---- cleanup ----

func (r *repo[K, R, W]) Cleanup() { r.cleaner.cleanup() }

func (r *repo[K, R, W]) maybeCleanup() bool { return r.cleaner.maybe() }

// runCleanup is one eviction pass. It removes what the policy selects
// without triggering further passes.
func (r *repo[K, R, W]) runCleanup() {
	if !r.opt.Policy.IsNecessary(r.total.load()) {
		return
	}
	cands := r.candidates()
	byEntry := make(map[K]*storedEntry[K, R, W], len(cands))
	info := policy.EvictionInfo[K, R, W]{
		Available: make([]policy.AvailableResource[K, R, W], len(cands)),
	}
	// The accumulator may briefly include weights of inserts that lose
	// their race; the snapshot sum never does.
	for i, c := range cands {
		info.Available[i] = c.view
		info.TotalWeight = info.TotalWeight.Add(c.view.Info.Weight)
		byEntry[c.view.Key] = c.entry
	}

	var removed, deferred int
	for _, sel := range r.opt.Policy.SelectForEviction(info) {
		s, ok := byEntry[sel.Key]
		if !ok {
			continue
		}
		switch out, _ := r.removeStored(s, EvictPolicy); out {
		case OutcomeRemoved:
			removed++
		case OutcomeDeferred:
			deferred++
		}
	}
	r.log.Debug("eviction pass",
		slog.Int("candidates", len(cands)),
		slog.Int("removed", removed),
		slog.Int("deferred", deferred),
	)
}

// ---- disposal ----

func (r *repo[K, R, W]) dispose(k K, res R, reason EvictReason) {
	r.disposals.Add(1)
	if reason == EvictPolicy {
		r.evictions.Add(1)
	}
	r.opt.Metrics.Evict(reason)
	r.callDisposer(k, res, reason)
	if cb := r.opt.OnDispose; cb != nil {
		r.callOnDispose(cb, k, res, reason)
	}
}

// callDisposer isolates disposer failures: they are logged, never returned.
func (r *repo[K, R, W]) callDisposer(k K, res R, reason EvictReason) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("disposer panicked", slog.Any("key", k), slog.String("reason", reason.String()), slog.Any("panic", p))
		}
	}()
	if err := r.opt.Disposer(res); err != nil {
		r.log.Error("dispose failed", slog.Any("key", k), slog.String("reason", reason.String()), slog.Any("error", err))
	}
}

func (r *repo[K, R, W]) callOnDispose(cb func(K, R, EvictReason), k K, res R, reason EvictReason) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("OnDispose panicked", slog.Any("key", k), slog.Any("panic", p))
		}
	}()
	cb(k, res, reason)
}

// reportSize forwards entry count and, for Measurable weights, total weight.
func (r *repo[K, R, W]) reportSize() {
	var w float64
	if m, ok := any(r.total.load()).(Measurable); ok {
		w = m.Float64()
	}
	r.opt.Metrics.Size(r.Len(), w)
}
