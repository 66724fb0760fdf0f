// Package clock provides a wrapping millisecond counter and the interval
// checks built on it.
//
// Millis is 32 bits wide and overflows after ~49.7 days of uptime. All
// comparisons go through Since, which subtracts in unsigned arithmetic so a
// check that straddles the overflow still yields the true elapsed time.
package clock

import "time"

// Millis is a monotonic millisecond timestamp.
type Millis uint32

// Since returns the milliseconds elapsed from then to now.
func Since(now, then Millis) uint32 {
	return uint32(now - then)
}

// Elapsed reports whether at least interval ms have passed since then.
func Elapsed(now, then Millis, interval uint32) bool {
	return Since(now, then) >= interval
}

// Ms converts a duration to a millisecond interval, saturating at the
// counter width.
func Ms(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}

// Source yields the current counter value.
type Source interface {
	Now() Millis
}

// Monotonic derives Millis from the runtime's monotonic clock.
type Monotonic struct {
	start time.Time
}

// NewMonotonic starts a counter at zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Now returns milliseconds since the counter was started, truncated to 32 bits.
func (m *Monotonic) Now() Millis {
	return Millis(uint32(time.Since(m.start).Milliseconds()))
}
