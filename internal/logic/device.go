package logic

import "github.com/sweeney/callbutton/internal/clock"

// DefaultHeartbeatMs is the interval between ONLINE heartbeats.
const DefaultHeartbeatMs = 30000

// Device owns the per-iteration control state: the input channels, the
// emergency flag and the heartbeat timer.
type Device struct {
	channels     []*Channel
	assistStatus Status
	emergency    bool
	counts       EventCounts

	heartbeatInterval uint32
	lastHeartbeat     clock.Millis
}

// NewDevice creates a device over the given channels. assistStatus is the
// status published for an assist call; heartbeatMs of 0 disables heartbeats.
func NewDevice(channels []*Channel, assistStatus Status, heartbeatMs uint32, now clock.Millis) *Device {
	return &Device{
		channels:          channels,
		assistStatus:      assistStatus,
		heartbeatInterval: heartbeatMs,
		lastHeartbeat:     now,
	}
}

// Scan polls every channel with its raw level (levels is in channel order)
// and returns the events to publish. Each channel yields at most one edge.
func (d *Device) Scan(levels []bool, now clock.Millis, battery int) []Event {
	var events []Event
	for i, ch := range d.channels {
		if i >= len(levels) {
			break
		}
		edge, ok := ch.Poll(levels[i], now)
		if !ok || edge != EdgeActivate {
			continue
		}

		ev := Event{Time: now, Input: ch.Name, Battery: battery}
		switch ch.Role {
		case RoleSOS:
			d.emergency = true
			ev.Type, ev.Status = EventSOS, StatusPending
		case RoleAssist:
			ev.Type, ev.Status = EventAssist, d.assistStatus
		case RoleConfirm:
			d.emergency = false
			ev.Type, ev.Status = EventGreen, StatusTriggered
		case RoleAccept:
			d.emergency = false
			ev.Type, ev.Status = EventBlue, StatusTriggered
		default:
			continue
		}
		d.counts.add(ev.Type)
		events = append(events, ev)
	}
	return events
}

// Emergency reports whether an SOS is outstanding.
func (d *Device) Emergency() bool {
	return d.emergency
}

// Channels returns the configured channels.
func (d *Device) Channels() []*Channel {
	return d.channels
}

// EventCountsSnapshot returns a copy of the event counters.
func (d *Device) EventCountsSnapshot() EventCounts {
	return d.counts
}

// HeartbeatDue reports whether a heartbeat should be sent now and, if so,
// records it. Heartbeats are never due while disconnected.
func (d *Device) HeartbeatDue(now clock.Millis, connected bool) bool {
	if d.heartbeatInterval == 0 || !connected {
		return false
	}
	if !clock.Elapsed(now, d.lastHeartbeat, d.heartbeatInterval) {
		return false
	}
	d.lastHeartbeat = now
	return true
}

// ResetHeartbeat restarts the heartbeat interval, e.g. after a fresh
// connection has just announced ONLINE.
func (d *Device) ResetHeartbeat(now clock.Millis) {
	d.lastHeartbeat = now
}
