package singleflight

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// Followers observe the value published by the leader.
func TestCall_WaitersSeeLeaderResult(t *testing.T) {
	t.Parallel()

	c := NewCall[string]()
	release := make(chan struct{})

	var g errgroup.Group
	var seen atomic.Int32
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			v, err := c.Wait(context.Background())
			if err != nil {
				return err
			}
			if v != "v" {
				return errors.New("unexpected value " + v)
			}
			seen.Add(1)
			return nil
		})
	}

	go func() {
		<-release
		_, _ = c.Run(func() (string, error) { return "v", nil })
	}()
	close(release)

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if seen.Load() != 16 {
		t.Fatalf("want 16 waiters, got %d", seen.Load())
	}
}

// A cancelled follower returns ctx.Err() without affecting the leader.
func TestCall_FollowerCancellation(t *testing.T) {
	t.Parallel()

	c := NewCall[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}

	v, err := c.Run(func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("leader result: v=%d err=%v", v, err)
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed after Run")
	}
}

// A panicking leader publishes a *PanicError instead of hanging waiters.
func TestCall_PanicIsPublished(t *testing.T) {
	t.Parallel()

	c := NewCall[int]()
	_, err := c.Run(func() (int, error) { panic("boom") })

	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("want PanicError(boom), got %v", err)
	}

	_, werr := c.Wait(context.Background())
	if !errors.As(werr, &pe) {
		t.Fatalf("waiter must see the panic error, got %v", werr)
	}
}
