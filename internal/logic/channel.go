package logic

import "github.com/sweeney/callbutton/internal/clock"

// DefaultSettleMs is the minimum spacing between accepted transitions on one input.
const DefaultSettleMs = 50

// Channel debounces a single physical input.
//
// After a transition is accepted the channel is locked for the settle
// window; samples taken while locked are ignored. Once the window has
// passed, the next sample that differs from the recorded level is accepted
// as a new transition. This replaces a blocking settle delay without
// stalling the other inputs or the timers.
type Channel struct {
	Name      string
	Role      Role
	ActiveLow bool

	settle     uint32
	high       bool // last accepted raw level
	lastChange clock.Millis
	locked     bool
}

// NewChannel creates a channel resting at its inactive level.
func NewChannel(name string, role Role, activeLow bool, settleMs uint32) *Channel {
	return &Channel{
		Name:      name,
		Role:      role,
		ActiveLow: activeLow,
		settle:    settleMs,
		high:      activeLow,
	}
}

// Active reports whether the last accepted level is the active one.
func (c *Channel) Active() bool {
	return c.high != c.ActiveLow
}

// Poll feeds a raw level sample. It returns the edge and true if the sample
// was accepted as a transition.
func (c *Channel) Poll(high bool, now clock.Millis) (Edge, bool) {
	if c.locked {
		if !clock.Elapsed(now, c.lastChange, c.settle) {
			return EdgeRelease, false
		}
		c.locked = false
	}

	if high == c.high {
		return EdgeRelease, false
	}

	c.high = high
	c.lastChange = now
	c.locked = true

	if c.Active() {
		return EdgeActivate, true
	}
	return EdgeRelease, true
}
