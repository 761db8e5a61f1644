package engine

import "sync/atomic"

// Clock hands out evaluation stamps.
//
// Every distinct model query (derivative, event poll, state change) takes a
// strictly increasing stamp from this clock. Compiled nodes cache their
// value per stamp, so equal stamps mean "nothing changed since".
//
// Clock is safe for concurrent use, although a Model only ever calls it
// from its single owning goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific stamp.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next stamp and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current stamp without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
