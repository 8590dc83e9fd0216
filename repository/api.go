package repository

import (
	"context"

	"github.com/IvanBrykalov/resrepo/policy"
)

// Repository is a concurrent, weight-bounded store of heavyweight resources.
// All methods are safe for concurrent use by multiple goroutines.
//
// Resources enter through Add or through a Get miss served by the Provider,
// and leave through Remove, RemoveAll, Close or policy-driven eviction.
// Every accepted resource is disposed exactly once, never while a Lock on it
// is held.
type Repository[K comparable, R any, W policy.Weight[W]] interface {
	// Get locks the resource for k, fetching it on a miss. Concurrent misses
	// for the same key share one provider call.
	//
	// Declared provider outcomes come back in Result (a successful Get always
	// registers a new Lock the caller must release). Provider errors, provider
	// panics, ErrClosed and ctx cancellation come back as error.
	Get(ctx context.Context, k K) (Result[K, R, W], error)

	// Add inserts r under k if k is absent. Otherwise r is disposed
	// immediately and false is returned.
	Add(k K, r R) bool

	// Remove removes and disposes the resource for k and returns true, if it
	// is present and idle. A locked or still-fetching resource is queued for
	// removal instead (false), as is an absent key (false, no-op).
	Remove(k K) bool

	// RemoveWithOutcome is Remove with a precise outcome.
	RemoveWithOutcome(k K) RemoveOutcome

	// RemoveAll applies Remove to every known key and runs one cleanup pass
	// if anything was removed immediately.
	RemoveAll()

	// Has reports whether an entry (stored or being fetched) exists for k.
	Has(k K) bool

	// IsLockedOrBeingProvided reports whether k is being fetched or holds
	// at least one Lock.
	IsLockedOrBeingProvided(k K) bool

	// Keys returns a snapshot of every key with an entry.
	Keys() []K

	// AvailableResources snapshots every stored entry. Entries still being
	// fetched are not included.
	AvailableResources() []policy.AvailableResource[K, R, W]

	// Cleanup blocks until an eviction pass that started after the call has
	// completed.
	Cleanup()

	// TotalWeight returns the summed weight of all stored resources.
	TotalWeight() W

	// Len returns the number of stored resources.
	Len() int

	// Stats returns cumulative counters.
	Stats() Stats

	// Close removes everything (deferring locked resources) and rejects
	// further use. Get then fails with ErrClosed; Add disposes its argument.
	Close() error
}

// Stats is a point-in-time view of repository counters.
type Stats struct {
	Hits            uint64 // Get served by a stored entry
	Misses          uint64 // Get that had to fetch or wait for a fetch
	Fetches         uint64 // provider calls
	Evictions       uint64 // disposals chosen by the eviction policy
	Disposals       uint64 // disposals for any reason
	CleanupPasses   uint64
	SkippedCleanups uint64
	Entries         int
}
