package repository

import "github.com/IvanBrykalov/resrepo/policy"

// Kind tags the variant of a ProvideResult or Result.
type Kind uint8

const (
	// KindFound: the resource is available (provided, or locked for the caller).
	KindFound Kind = iota
	// KindNotFound: the resource does not exist; Reason says why.
	KindNotFound
	// KindFailed: the resource exists but could not be obtained; see Reason and Err.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// ProvideResult is the declared outcome of a Provider call.
type ProvideResult[R any] struct {
	kind     Kind
	resource R
	reason   string
	err      error
}

// Provided reports a successfully obtained resource.
func Provided[R any](r R) ProvideResult[R] {
	return ProvideResult[R]{kind: KindFound, resource: r}
}

// NotFound reports that no resource exists for the key.
func NotFound[R any](reason string) ProvideResult[R] {
	return ProvideResult[R]{kind: KindNotFound, reason: reason}
}

// Failed reports that the resource exists but could not be obtained.
func Failed[R any](reason string, err error) ProvideResult[R] {
	return ProvideResult[R]{kind: KindFailed, reason: reason, err: err}
}

func (p ProvideResult[R]) Kind() Kind     { return p.kind }
func (p ProvideResult[R]) Resource() R    { return p.resource }
func (p ProvideResult[R]) Reason() string { return p.reason }
func (p ProvideResult[R]) Err() error     { return p.err }

func (p ProvideResult[R]) outcome() LoadOutcome {
	switch p.kind {
	case KindFound:
		return LoadProvided
	case KindNotFound:
		return LoadNotFound
	default:
		return LoadFailed
	}
}

// Result is the declared outcome of Repository.Get.
// On KindFound the caller owns Lock and must release it.
type Result[K comparable, R any, W policy.Weight[W]] struct {
	kind   Kind
	lock   *Lock[K, R, W]
	reason string
	err    error
}

func found[K comparable, R any, W policy.Weight[W]](l *Lock[K, R, W]) Result[K, R, W] {
	return Result[K, R, W]{kind: KindFound, lock: l}
}

func fromProvide[K comparable, R any, W policy.Weight[W]](p ProvideResult[R]) Result[K, R, W] {
	return Result[K, R, W]{kind: p.kind, reason: p.reason, err: p.err}
}

func (r Result[K, R, W]) Kind() Kind { return r.kind }

// Found reports whether a lock was acquired.
func (r Result[K, R, W]) Found() bool { return r.kind == KindFound }

// Lock returns the acquired lock, or nil unless Kind is KindFound.
func (r Result[K, R, W]) Lock() *Lock[K, R, W] { return r.lock }

// Reason explains a NotFound or Failed outcome.
func (r Result[K, R, W]) Reason() string { return r.reason }

// Err returns the cause attached to a Failed outcome.
func (r Result[K, R, W]) Err() error { return r.err }

// RemoveOutcome distinguishes what RemoveWithOutcome did.
type RemoveOutcome uint8

const (
	// OutcomeNotPresent: no entry existed for the key.
	OutcomeNotPresent RemoveOutcome = iota
	// OutcomeDeferred: the entry is locked or being fetched; it will be
	// removed once its last lock is released.
	OutcomeDeferred
	// OutcomeRemoved: the entry was removed and disposed.
	OutcomeRemoved
)

func (o RemoveOutcome) String() string {
	switch o {
	case OutcomeNotPresent:
		return "not_present"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "removed"
	}
}
