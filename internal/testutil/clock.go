package testutil

import "sync"

// DefaultEpoch is the unix time the first tick of a new clock lands on.
const DefaultEpoch int64 = 1_700_000_000

// DeterministicClock hands out strictly increasing created_at timestamps so
// that events built in tests have stable ids and a stable order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch int64
	ticks int64
}

// NewDeterministicClock creates a clock whose first Next returns DefaultEpoch.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch)
}

// NewDeterministicClockAt creates a clock whose first Next returns epoch.
func NewDeterministicClockAt(epoch int64) *DeterministicClock {
	return &DeterministicClock{epoch: epoch}
}

// Next returns the next timestamp, one second after the previous one.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.epoch + c.ticks
	c.ticks++
	return t
}

// Current returns the last timestamp handed out, or epoch-1 before the first tick.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.ticks - 1
}

// Reset rewinds the clock so the next call to Next returns epoch again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
