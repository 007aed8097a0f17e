package ledger

import (
	"sync/atomic"
	"time"
)

// Clock supplies host time for new records.
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a function to a Clock.
type ClockFunc func() uint64

// Now calls f.
func (f ClockFunc) Now() uint64 {
	return f()
}

// SystemClock reports Unix seconds and never goes backwards, even if the
// wall clock does.
type SystemClock struct {
	last atomic.Uint64
}

// Now returns the current time in Unix seconds.
func (c *SystemClock) Now() uint64 {
	now := uint64(time.Now().Unix())
	for {
		last := c.last.Load()
		if now <= last {
			return last
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}
