package strata

import "sync/atomic"

// Clock is a monotonic logical clock. Every transition record is stamped
// with a strictly increasing seq from it, and journal readers order by seq
// rather than wall time, so replayed histories sort identically regardless
// of when they were captured.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), so
// several machines may share one clock to get a single global ordering.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number. Used to
// continue numbering after the last entry of an existing journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
