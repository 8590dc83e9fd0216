// Package repository provides a concurrent, weight-bounded store for
// heavyweight resources (downloaded archives, extracted distributions,
// class indexes) whose lifetime is guarded by locks.
//
// Design
//
//   - Entries: every key maps to exactly one entry, either a placeholder for
//     an in-flight provider call or a stored resource with its lock set.
//     The key table is split into shards, each protected by an RWMutex, and
//     supports replace-if-equal and remove-if-equal updates.
//
//   - Single-flight: on a miss the first caller installs a placeholder and
//     runs the Provider; concurrent callers wait on the same call. Declared
//     NotFound/Failed outcomes are returned to every waiter and are not
//     cached. Provider errors and panics come back as coded errors.
//
//   - Locks: a successful Get always registers a new Lock. A resource is
//     disposed exactly once and never while locked. Removing a locked (or
//     still-fetching) resource queues the removal; it completes when the
//     last Lock is released.
//
//   - Weight: the Weigher runs once per accepted resource. The running total
//     is kept with a compare-and-swap loop and always equals the sum of the
//     stored weights once concurrent mutations settle.
//
//   - Eviction: after each Add, Remove and fetch the EvictionPolicy is
//     consulted. Passes never overlap; requests that arrive during a pass are
//     folded into one follow-up pass. Cleanup blocks until a fresh pass ran.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Load/Evict/Size signals.
//     By default NoopMetrics is used; see metrics/prom and metrics/otel.
//
// Basic usage
//
//	pol := lru.New[string, *Archive, weight.Space](2*weight.GiB, 1536*weight.MiB)
//	repo, err := repository.New(repository.Options[string, *Archive, weight.Space]{
//	    Provider: repository.ProviderFunc[string, *Archive](download),
//	    Weigher:  func(a *Archive) weight.Space { return weight.Space(a.Size) },
//	    Policy:   pol,
//	})
//	if err != nil {
//	    return err
//	}
//	defer repo.Close()
//
//	res, err := repo.Get(ctx, "plugin-1.2.3")
//	if err != nil {
//	    return err // provider error, panic, ctx cancellation or ErrClosed
//	}
//	if !res.Found() {
//	    return fmt.Errorf("%s: %s", res.Kind(), res.Reason())
//	}
//	lock := res.Lock()
//	defer lock.Release()
//	use(lock.Resource())
package repository
