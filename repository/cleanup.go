package repository

import "sync"

// cleaner serializes eviction passes.
//
// maybe never blocks: a request that arrives while a pass is running is
// counted as skipped and folded into a single catch-up pass run by the
// current runner. cleanup blocks until a pass that started after the call
// has finished.
type cleaner struct {
	mu   sync.Mutex
	cond *sync.Cond

	// ---- guarded by mu ----
	running  bool
	started  uint64 // passes begun
	finished uint64 // passes completed
	pending  uint64 // skips since the current pass began
	skipped  uint64 // skips overall

	pass func()
}

func newCleaner(pass func()) *cleaner {
	c := &cleaner{pass: pass}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// maybe runs a pass unless one is already running.
func (c *cleaner) maybe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.pending++
		c.skipped++
		return false
	}
	c.runLocked()
	// Skips recorded during the pass get one more pass, not one each.
	if c.pending > 0 && !c.running {
		c.runLocked()
	}
	return true
}

// cleanup waits for any running pass, then makes sure one more completes.
func (c *cleaner) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.started + 1
	for c.finished < target {
		if !c.running {
			c.runLocked()
			continue
		}
		c.cond.Wait()
	}
}

// runLocked executes one pass with mu released. Called and returns with mu held.
func (c *cleaner) runLocked() {
	c.running = true
	c.started++
	c.pending = 0
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.finished++
		c.cond.Broadcast()
	}()
	c.pass()
}

// stats returns (skipped, passes) under mu.
func (c *cleaner) stats() (skipped, passes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped, c.finished
}
