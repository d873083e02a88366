package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced clock for code that takes a now func.
type Clock struct {
	current time.Time
	mu      sync.Mutex
}

// NewClock creates a Clock starting at now.
func NewClock(now time.Time) *Clock {
	return &Clock{current: now}
}

// Now returns the configured current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance advances the clock by the given duration.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
