package repository

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/resrepo/policy"
)

// EvictReason explains why a resource was disposed.
type EvictReason int

const (
	// EvictPolicy: selected by the eviction policy during a cleanup pass.
	EvictPolicy EvictReason = iota
	// EvictExplicit: removed by Remove, RemoveAll or Close.
	EvictExplicit
	// EvictRejected: offered to Add under an occupied key and never installed.
	EvictRejected
	// EvictReplaced: fetched, but its placeholder vanished before installation.
	EvictReplaced
)

func (r EvictReason) String() string {
	switch r {
	case EvictPolicy:
		return "policy"
	case EvictExplicit:
		return "explicit"
	case EvictRejected:
		return "rejected"
	case EvictReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// LoadOutcome classifies a finished provider call.
type LoadOutcome int

const (
	LoadProvided LoadOutcome = iota
	LoadNotFound
	LoadFailed
	// LoadError: the provider returned an error, panicked or was cancelled.
	LoadError
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadProvided:
		return "provided"
	case LoadNotFound:
		return "not_found"
	case LoadFailed:
		return "failed"
	default:
		return "error"
	}
}

// Metrics exposes repository-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Load(outcome LoadOutcome, d time.Duration)
	Evict(reason EvictReason)
	Size(entries int, weight float64)
}

// Measurable weights can be exported as a number (see Metrics.Size).
type Measurable interface{ Float64() float64 }

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Provider supplies a resource for a key on a cache miss.
//
// Expected outcomes ("no such plugin", "download failed") are returned as
// NotFound/Failed results. A non-nil error (or a panic) is unexpected and is
// handed to every goroutine waiting on that fetch.
type Provider[K comparable, R any] interface {
	Provide(ctx context.Context, key K) (ProvideResult[R], error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc[K comparable, R any] func(ctx context.Context, key K) (ProvideResult[R], error)

// Provide calls f(ctx, key).
func (f ProviderFunc[K, R]) Provide(ctx context.Context, key K) (ProvideResult[R], error) {
	return f(ctx, key)
}

// Options configures the repository. Zero values are safe where noted;
// defaults are applied in New():
//   - nil Disposer => Close() resources implementing io.Closer
//   - Shards <= 0  => auto (rounded up to power of two)
//   - nil Hasher   => xxhash for strings, a mixer for integers, maphash otherwise
//   - nil Metrics  => NoopMetrics
//   - nil Logger   => slog.Default()
//   - nil Clock    => SystemClock
type Options[K comparable, R any, W policy.Weight[W]] struct {
	// Provider fetches a resource on a miss. Required.
	Provider Provider[K, R]

	// Weigher computes a resource's weight once, when it is accepted. Required.
	Weigher func(R) W

	// Policy decides when and what to evict. Required.
	Policy policy.EvictionPolicy[K, R, W]

	// Disposer releases a resource at the end of its life. It is invoked exactly
	// once per accepted (or rejected) resource; errors and panics are logged.
	Disposer func(R) error

	// OnDispose is called right after the Disposer; keep it lightweight and
	// do not call Cleanup from it.
	OnDispose func(k K, r R, reason EvictReason)

	// Shards defines the number of table shards. If 0, an automatic value is
	// chosen (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// Hasher maps keys to shards. The default handles every comparable K.
	Hasher func(K) uint64

	// Observability
	Metrics Metrics
	Logger  *slog.Logger

	// Clock allows overriding the time source (tests). Nil => SystemClock.
	Clock Clock
}

// closeDisposer is the default Disposer.
func closeDisposer[R any](r R) error {
	if c, ok := any(r).(io.Closer); ok {
		return c.Close()
	}
	return nil
}
