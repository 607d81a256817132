package clock

import (
	"math"
	"sync/atomic"
)

// Clock is a Lamport logical clock. The zero value starts at 0 and is safe for
// concurrent use.
//
// The counter is a uint64 and saturates at math.MaxUint64 instead of wrapping.
type Clock struct {
	v atomic.Uint64
}

func New() *Clock {
	return &Clock{}
}

func (c *Clock) Now() uint64 {
	return c.v.Load()
}

// Tick records a local event.
func (c *Clock) Tick() uint64 {
	return c.advance(0)
}

// SendStamp advances the clock for an outgoing message and returns the stamp
// to attach to it.
func (c *Clock) SendStamp() uint64 {
	return c.advance(0)
}

// Receive merges a remote stamp: counter = max(counter, remote) + 1.
func (c *Clock) Receive(remote uint64) uint64 {
	return c.advance(remote)
}

func (c *Clock) advance(floor uint64) uint64 {
	for {
		cur := c.v.Load()
		next := max(cur, floor)
		if next < math.MaxUint64 {
			next++
		}
		if next == cur || c.v.CompareAndSwap(cur, next) {
			return next
		}
	}
}
