package prd

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the injectable monotonic millisecond clock that drives every
// timer in the per-peer reliable datagram layer: ack urgency, resend
// backoff, and the flusher's wakeup schedule. Production code uses
// NewClock(clockwork.NewRealClock()); tests use
// NewClock(clockwork.NewFakeClock()) to make S3/S4/S5-style scenarios
// deterministic.
type Clock struct {
	c clockwork.Clock
}

// NewClock wraps a clockwork.Clock.
func NewClock(c clockwork.Clock) *Clock {
	return &Clock{c: c}
}

// NowMillis returns the current time as milliseconds since the Unix
// epoch. Sequence-number wrap and calendar semantics are irrelevant here;
// only monotone comparability between successive calls matters.
func (c *Clock) NowMillis() int64 {
	return c.c.Now().UnixNano() / int64(time.Millisecond)
}

// After returns a channel that fires once d has elapsed on this clock.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	return c.c.After(d)
}

// Underlying exposes the wrapped clockwork.Clock, for code (such as the
// flusher) that needs to hand it to a worker loop directly.
func (c *Clock) Underlying() clockwork.Clock {
	return c.c
}
