package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	DeviceID      string         `json:"device_id"`
	Emergency     bool           `json:"emergency"`
	Battery       int            `json:"battery_level"`
	Inputs        []InputJSON    `json:"inputs"`
	LEDs          LEDsJSON       `json:"leds"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"event_counts"`
	LastEvent     *LastEventJSON `json:"last_event,omitempty"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// InputJSON is one button's debounced state.
type InputJSON struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	State string `json:"state"`
}

// LEDsJSON reports the indicator outputs.
type LEDsJSON struct {
	Connection bool `json:"connection"`
	Battery    bool `json:"battery"`
	Emergency  bool `json:"emergency"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected         bool   `json:"connected"`
	Broker            string `json:"broker"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	SOS    int `json:"sos"`
	Assist int `json:"assist"`
	Green  int `json:"green_btn"`
	Blue   int `json:"blue_btn"`
}

// LastEventJSON is the most recent publish attempt.
type LastEventJSON struct {
	EventType string `json:"event_type"`
	Status    string `json:"status"`
	Input     string `json:"input"`
	Timestamp string `json:"timestamp"`
	Published bool   `json:"published"`
	Error     string `json:"error,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	StatusTopic string `json:"status_topic"`
	EventTopic  string `json:"event_topic"`
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	ReconnectMs int64  `json:"reconnect_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	HTTPAddr    string `json:"http_addr"`
}

// InputStateString renders a button state.
func InputStateString(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "IDLE"
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inputs := make([]InputJSON, 0, len(snap.Inputs))
	for _, in := range snap.Inputs {
		inputs = append(inputs, InputJSON{
			Name:  in.Name,
			Role:  string(in.Role),
			State: InputStateString(in.Active),
		})
	}

	inner := StatusInner{
		DeviceID:      snap.Config.DeviceID,
		Emergency:     snap.Emergency,
		Battery:       snap.Battery,
		Inputs:        inputs,
		LEDs:          LEDsJSON{Connection: snap.LEDs.Connection, Battery: snap.LEDs.Battery, Emergency: snap.LEDs.Emergency},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected:         snap.MQTTConnected,
			Broker:            snap.Config.Broker,
			ReconnectAttempts: snap.ReconnectAttempts,
		},
		Counts: CountsJSON{
			SOS:    snap.Counts.SOS,
			Assist: snap.Counts.Assist,
			Green:  snap.Counts.Green,
			Blue:   snap.Counts.Blue,
		},
		Config: ConfigJSON{
			StatusTopic: snap.Config.StatusTopic,
			EventTopic:  snap.Config.EventTopic,
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			ReconnectMs: snap.Config.ReconnectMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if e := snap.LastEvent; e != nil {
		inner.LastEvent = &LastEventJSON{
			EventType: string(e.Type),
			Status:    string(e.Status),
			Input:     e.Input,
			Timestamp: e.At.UTC().Format(time.RFC3339),
			Published: e.Published,
			Error:     e.Error,
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
