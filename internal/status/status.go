// Package status provides a thread-safe status tracker for the callbutton daemon.
// It is written by the control loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/callbutton/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DeviceID    string
	Broker      string
	StatusTopic string
	EventTopic  string
	HTTPAddr    string
	PollMs      int64
	DebounceMs  int64
	ReconnectMs int64
	HeartbeatMs int64
}

// InputState is the debounced state of one button.
type InputState struct {
	Name   string
	Role   logic.Role
	Active bool
}

// LastEvent describes the most recent call the device tried to publish.
type LastEvent struct {
	Type      logic.EventType
	Status    logic.Status
	Input     string
	At        time.Time
	Published bool
	Error     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Inputs            []InputState
	Emergency         bool
	Battery           int
	LEDs              logic.Outputs
	Counts            logic.EventCounts
	LastEvent         *LastEvent
	StartTime         time.Time
	Now               time.Time
	MQTTConnected     bool
	ReconnectAttempts int
	Network           *NetworkInfo
	Config            Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the device state. Called from the control loop on every tick.
func (t *Tracker) Update(inputs []InputState, emergency bool, battery int, leds logic.Outputs, counts logic.EventCounts) {
	in := append([]InputState(nil), inputs...)
	t.mu.Lock()
	t.snap.Inputs = in
	t.snap.Emergency = emergency
	t.snap.Battery = battery
	t.snap.LEDs = leds
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTT sets the MQTT connection status and attempt count.
func (t *Tracker) SetMQTT(connected bool, attempts int) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.ReconnectAttempts = attempts
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// RecordEvent stores the outcome of a publish attempt.
func (t *Tracker) RecordEvent(ev logic.Event, at time.Time, err error) {
	last := &LastEvent{
		Type:      ev.Type,
		Status:    ev.Status,
		Input:     ev.Input,
		At:        at,
		Published: err == nil,
	}
	if err != nil {
		last.Error = err.Error()
	}
	t.mu.Lock()
	t.snap.LastEvent = last
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
