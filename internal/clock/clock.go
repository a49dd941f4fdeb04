// Package clock provides the server's monotonic millisecond time source.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is a monotonic millisecond counter anchored at server start.
// Go's time package guarantees the underlying reading never jumps backward.
type Clock struct {
	source clockwork.Clock
	start  time.Time
}

// New anchors a clock at the source's current time. Pass
// clockwork.NewRealClock outside of tests.
func New(source clockwork.Clock) *Clock {
	return &Clock{source: source, start: source.Now()}
}

// Now returns the source's current time.
func (c *Clock) Now() time.Time {
	return c.source.Now()
}

// NowMS returns milliseconds elapsed since the clock was created.
func (c *Clock) NowMS() uint64 {
	d := c.source.Since(c.start)
	if d < 0 {
		panic("clock: monotonic time moved backward")
	}
	return uint64(d / time.Millisecond)
}

// UptimeMS returns milliseconds since startMS, saturating at zero.
func (c *Clock) UptimeMS(startMS uint64) uint64 {
	now := c.NowMS()
	if now < startMS {
		return 0
	}
	return now - startMS
}
