// Package singleflight provides a shared in-flight computation that one
// leader runs and any number of followers wait on.
package singleflight

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Call is a single computation whose result is published to every waiter.
//
// Concurrency notes:
//   - Exactly one goroutine (the leader) calls Run; the others call Wait.
//   - Publishing (val, err) happens-before close(c.done), so reads after
//     <-done observe the final values.
//   - Cancelling ctx in a follower unblocks only that follower; it does
//     NOT cancel the leader's fn. If you need cancellation of the work,
//     pass ctx into fn and handle it there.
type Call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// NewCall returns a Call that has not been run yet.
func NewCall[V any]() *Call[V] {
	return &Call[V]{done: make(chan struct{})}
}

// Run executes fn, publishes its result and wakes every waiter.
// A panic in fn is recovered and published as a *PanicError so that
// followers are never left waiting. Run must be called at most once.
func (c *Call[V]) Run(fn func() (V, error)) (v V, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero V
			v, err = zero, &PanicError{Value: p, Stack: debug.Stack()}
		}
		c.val, c.err = v, err
		close(c.done)
	}()
	return fn()
}

// Wait blocks until the leader publishes a result or ctx is done.
// On ctx cancellation it returns ctx.Err() while the leader keeps running.
func (c *Call[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Done is closed once the result is published.
func (c *Call[V]) Done() <-chan struct{} { return c.done }

// PanicError carries a value recovered from a panicking leader.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("singleflight: leader panicked: %v", p.Value)
}
