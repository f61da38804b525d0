// Package testutil holds deterministic stand-ins for time and identity
// used by tests and the conformance harness.
package testutil

import "sync"

// LogicalClock is a resettable monotonic counter. Traces stamp each step
// with it instead of wall time so that runs compare byte-for-byte.
type LogicalClock struct {
	mu  sync.Mutex
	seq int64
}

// NewLogicalClock returns a clock whose first tick is 1.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// Tick advances the clock and returns the new value.
func (c *LogicalClock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Now returns the last value handed out, or 0 before the first tick.
func (c *LogicalClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to 0.
func (c *LogicalClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
