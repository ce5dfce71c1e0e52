package testutil

import (
	"sync"
	"time"
)

// Epoch is the first time returned by a DeterministicClock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a fake wall clock that advances by a fixed tick on
// every call, so timestamps written in tests are distinct and reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	tick time.Duration
	seq  int64
}

// NewDeterministicClock creates a clock advancing by tick per call.
// The first call to Now returns Epoch.
func NewDeterministicClock(tick time.Duration) *DeterministicClock {
	return &DeterministicClock{tick: tick}
}

// Now returns the next time and advances the clock.
// Its signature matches time.Now so it can be passed as a clock option.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.seq) * c.tick)
	c.seq++
	return t
}

// Calls returns how many times Now has been called.
func (c *DeterministicClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset restarts the clock at Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
