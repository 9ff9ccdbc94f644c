package scheduling

import (
	"sync"
	"time"
)

// Clock supplies the current instant. Every status derivation reads time through it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in the campus time zone.
type SystemClock struct {
	Location *time.Location
}

// Now implements Clock.
func (c SystemClock) Now() time.Time {
	now := time.Now()
	if c.Location != nil {
		return now.In(c.Location)
	}
	return now
}

// FixedClock returns a settable instant. It is safe for concurrent use.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixedClock returns a clock frozen at now.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to now.
func (c *FixedClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
