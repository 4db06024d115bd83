package capture

import "sync"

// completion turns the host's completion callback into a one-shot channel per
// execution cycle. Notifications that arrive when no cycle is armed, or after
// the armed cycle already fired, are dropped. A cycle given up with abandon
// still owes one notification; the next one to arrive is charged to it.
type completion struct {
	mu    sync.Mutex
	ch    chan struct{}
	stale int
}

// arm starts a new cycle and returns the channel closed when it completes.
// It must be called before the cycle is triggered.
func (c *completion) arm() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ch = make(chan struct{})
	return c.ch
}

func (c *completion) fire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale > 0 {
		c.stale--
		return
	}
	if c.ch != nil {
		close(c.ch)
		c.ch = nil
	}
}

// disarm drops the current cycle without signalling it. Use it when the
// cycle never started.
func (c *completion) disarm() {
	c.mu.Lock()
	c.ch = nil
	c.mu.Unlock()
}

// abandon drops a cycle that was triggered but has not reported back, so its
// late notification cannot complete a later cycle. It returns false when the
// cycle fired before it could be abandoned.
func (c *completion) abandon() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return false
	}
	c.ch = nil
	c.stale++
	return true
}
