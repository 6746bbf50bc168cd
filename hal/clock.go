// Package hal holds the hardware abstraction of the simulated machine: the
// wall clock and the interrupt mask. Everything above it (pm, bcache) is
// written against these two primitives only.
package hal

import "sync/atomic"

// Clock counts clock ticks since boot. In the simulation, ticks advance
// only when someone calls Tick or Set, which is what makes lottery draws
// reproducible in tests.
type Clock struct {
	ticks atomic.Uint64
}

func NewClock() *Clock {
	return &Clock{}
}

// Ticks returns the current tick count.
func (c *Clock) Ticks() uint64 {
	return c.ticks.Load()
}

// Tick advances the clock by one tick.
func (c *Clock) Tick() {
	c.ticks.Add(1)
}

// Set moves the clock to an absolute tick count.
func (c *Clock) Set(t uint64) {
	c.ticks.Store(t)
}
