// Package ccmetric provides small lock-free counter helpers shared by
// components that tally statistics on a hot path without wanting a
// mutex in the loop: the reduction pipeline (C4), the QoS scheduler
// (C6), wear-leveling (C7), and the replication engine (C10).
package ccmetric

import "sync/atomic"

// Counter is a monotonically increasing uint64 counter, safe for
// concurrent use without external locking.
type Counter struct {
	v atomic.Uint64
}

// Add increments the counter by delta and returns the new value.
func (c *Counter) Add(delta uint64) uint64 {
	return c.v.Add(delta)
}

// Inc increments the counter by one and returns the new value.
func (c *Counter) Inc() uint64 {
	return c.v.Add(1)
}

// Load returns the counter's current value.
func (c *Counter) Load() uint64 {
	return c.v.Load()
}

// Reset sets the counter back to zero.
func (c *Counter) Reset() {
	c.v.Store(0)
}

// Gauge is a lock-free counter that can also move down, for values like
// in-flight counts or current lag that aren't purely cumulative.
type Gauge struct {
	v atomic.Int64
}

// Add adjusts the gauge by delta (which may be negative) and returns
// the new value.
func (g *Gauge) Add(delta int64) int64 {
	return g.v.Add(delta)
}

// Set stores v directly.
func (g *Gauge) Set(v int64) {
	g.v.Store(v)
}

// Load returns the gauge's current value.
func (g *Gauge) Load() int64 {
	return g.v.Load()
}
