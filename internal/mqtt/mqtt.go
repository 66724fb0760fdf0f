// Package mqtt provides the messaging link to the backend with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/sweeney/callbutton/internal/logic"
)

// DevicePlaceholder is substituted with the device identifier in topic templates.
const DevicePlaceholder = "{device}"

// Default topic templates.
const (
	DefaultStatusTopic = "status/" + DevicePlaceholder
	DefaultEventTopic  = "event/" + DevicePlaceholder
)

// Status topic payloads.
const (
	PayloadOnline  = "ONLINE"
	PayloadOffline = "OFFLINE"
)

// QoS levels used on each topic.
const (
	QoSStatus byte = 1
	QoSEvent  byte = 0
)

// ErrNotConnected is returned when a publish is attempted without a link.
var ErrNotConnected = errors.New("mqtt: not connected")

// Topic expands a topic template for a device.
func Topic(template, deviceID string) string {
	return strings.ReplaceAll(template, DevicePlaceholder, deviceID)
}

// Will is the last-will message the broker publishes on an unclean disconnect.
type Will struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// Transport is the narrow surface of an MQTT client the daemon relies on.
type Transport interface {
	// Connect opens a session carrying the given last will.
	Connect(clientID string, will Will) error

	// Publish sends a message. Returns ErrNotConnected without a link.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// IsConnected reports whether the link is currently up.
	IsConnected() bool

	// Pump services pending link notifications. Called once per loop iteration.
	Pump()

	// Disconnect closes the session cleanly (the will is not sent).
	Disconnect()
}

// Payload is the JSON body published on the event topic.
type Payload struct {
	DeviceMAC    string `json:"device_mac"`
	EventType    string `json:"event_type"`
	Status       string `json:"status"`
	BatteryLevel int    `json:"battery_level"`
}

// FormatPayload creates the JSON payload for a button event.
func FormatPayload(deviceID string, event logic.Event) ([]byte, error) {
	payload := Payload{
		DeviceMAC:    deviceID,
		EventType:    string(event.Type),
		Status:       string(event.Status),
		BatteryLevel: event.Battery,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event payload")
	}
	return data, nil
}
