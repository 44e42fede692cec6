// Package clock provides the monotonic millisecond time source the cache
// core uses for every TTL computation. It exists so tests can advance time
// deterministically instead of sleeping, the same mockable-nowFunc idiom the
// teacher's breaker package uses internally.
package clock

import "time"

// Clock is a monotonic millisecond time source.
type Clock interface {
	NowMS() int64
}

// systemClock reads the real monotonic clock via time.Now(); time.Time
// carries a monotonic reading on every platform Go supports, so subtracting
// two systemClock readings is immune to wall-clock adjustments.
type systemClock struct{ epoch time.Time }

// System returns a Clock backed by the real monotonic clock, zeroed at the
// moment System is called.
func System() Clock {
	return &systemClock{epoch: time.Now()}
}

func (c *systemClock) NowMS() int64 {
	return time.Since(c.epoch).Milliseconds()
}
