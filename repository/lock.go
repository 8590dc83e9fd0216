package repository

import (
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/resrepo/policy"
)

// Lock proves that its holder is using a resource. While at least one Lock
// on a resource is held the resource is never disposed.
//
// Release (or Close) must be called exactly when the holder is done; further
// calls are no-ops. The resource must not be used after release.
type Lock[K comparable, R any, W policy.Weight[W]] struct {
	repo     *repo[K, R, W]
	entry    *storedEntry[K, R, W]
	id       uint64
	lockedAt int64
	released atomic.Bool
}

// Key returns the key the resource is stored under.
func (l *Lock[K, R, W]) Key() K { return l.entry.key }

// Resource returns the locked resource.
func (l *Lock[K, R, W]) Resource() R { return l.entry.info.Resource }

// Info returns the resource together with the weight it was accepted with.
func (l *Lock[K, R, W]) Info() policy.ResourceInfo[R, W] { return l.entry.info }

// LockTime returns when the lock was acquired, per the repository clock.
func (l *Lock[K, R, W]) LockTime() time.Time { return time.Unix(0, l.lockedAt) }

// ID is unique per acquisition within one repository.
func (l *Lock[K, R, W]) ID() uint64 { return l.id }

// Release detaches the lock. If the resource was queued for removal and this
// was its last lock, the resource is removed and disposed before returning.
func (l *Lock[K, R, W]) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.repo.release(l)
}

// Close is Release for use with defer and io.Closer consumers.
func (l *Lock[K, R, W]) Close() error {
	l.Release()
	return nil
}
