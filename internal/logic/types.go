// Package logic contains the pure control logic of the call button.
// This package does no I/O (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via clock.Millis parameters.
package logic

import (
	"github.com/pkg/errors"

	"github.com/sweeney/callbutton/internal/clock"
)

// EventType is the kind of call published to the backend.
type EventType string

const (
	EventSOS    EventType = "SOS"
	EventAssist EventType = "ASSIST"
	EventGreen  EventType = "GREEN_BTN"
	EventBlue   EventType = "BLUE_BTN"
)

// Status is the lifecycle state attached to a published event.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusTriggered    Status = "TRIGGERED"
	StatusAcknowledged Status = "ACKNOWLEDGED"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusTriggered, StatusAcknowledged:
		return st, nil
	}
	return "", errors.Errorf("unknown status %q", s)
}

// Role is what a physical input means to the device.
type Role string

const (
	RoleSOS     Role = "sos"     // red: raise an emergency
	RoleAssist  Role = "assist"  // yellow: general call
	RoleConfirm Role = "confirm" // green: confirm or cancel
	RoleAccept  Role = "accept"  // blue: caregiver accepts
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSOS, RoleAssist, RoleConfirm, RoleAccept:
		return r, nil
	}
	return "", errors.Errorf("unknown input role %q", s)
}

// Edge is an accepted level transition on an input.
type Edge int

const (
	EdgeRelease Edge = iota
	EdgeActivate
)

func (e Edge) String() string {
	if e == EdgeActivate {
		return "activate"
	}
	return "release"
}

// Event is a call to be published.
type Event struct {
	Time    clock.Millis
	Input   string
	Type    EventType
	Status  Status
	Battery int
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	SOS    int
	Assist int
	Green  int
	Blue   int
}

func (c *EventCounts) add(t EventType) {
	switch t {
	case EventSOS:
		c.SOS++
	case EventAssist:
		c.Assist++
	case EventGreen:
		c.Green++
	case EventBlue:
		c.Blue++
	}
}
