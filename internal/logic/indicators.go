package logic

import "github.com/sweeney/callbutton/internal/clock"

const (
	// LowBatteryPercent is the lowest level at which the battery LED is
	// steady; below it the LED blinks.
	LowBatteryPercent = 20
	// BatteryBlinkMs is the battery LED half-period while low.
	BatteryBlinkMs = 500
	// EmergencyBlinkMs is the emergency LED half-period while an SOS is outstanding.
	EmergencyBlinkMs = 200
)

// Outputs is the desired level of each LED.
type Outputs struct {
	Connection bool
	Battery    bool
	Emergency  bool
}

// Indicators derives LED levels from three independent timed states.
type Indicators struct {
	connected bool

	batteryOn      bool
	batteryToggled clock.Millis

	emergencyActive  bool
	emergencyOn      bool
	emergencyToggled clock.Millis
}

// NewIndicators creates an indicator controller with every LED off.
func NewIndicators() *Indicators {
	return &Indicators{}
}

// SetConnected drives the connection LED.
func (in *Indicators) SetConnected(on bool) {
	in.connected = on
}

// Update advances the blink timers and returns the LED levels.
func (in *Indicators) Update(now clock.Millis, battery int, emergency bool) Outputs {
	if battery >= LowBatteryPercent {
		in.batteryOn = true
	} else if clock.Elapsed(now, in.batteryToggled, BatteryBlinkMs) {
		in.batteryOn = !in.batteryOn
		in.batteryToggled = now
	}

	switch {
	case !emergency:
		in.emergencyActive = false
		in.emergencyOn = false
	case !in.emergencyActive:
		in.emergencyActive = true
		in.emergencyOn = true
		in.emergencyToggled = now
	case clock.Elapsed(now, in.emergencyToggled, EmergencyBlinkMs):
		in.emergencyOn = !in.emergencyOn
		in.emergencyToggled = now
	}

	return Outputs{
		Connection: in.connected,
		Battery:    in.batteryOn,
		Emergency:  in.emergencyOn,
	}
}
