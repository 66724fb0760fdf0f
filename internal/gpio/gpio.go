// Package gpio provides GPIO input reading and LED output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads GPIO input lines.
type Reader interface {
	// Read returns the raw level of each configured line, in configuration
	// order. true = high. Active-low handling is left to the caller.
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// LED identifies a status indicator output.
type LED string

const (
	LEDConnection LED = "connection"
	LEDBattery    LED = "battery"
	LEDEmergency  LED = "emergency"
)

// LEDs lists every indicator in a stable order.
var LEDs = []LED{LEDConnection, LEDBattery, LEDEmergency}

// Writer drives LED outputs.
type Writer interface {
	// Set drives the LED on or off. Unconfigured LEDs are ignored.
	Set(led LED, on bool) error

	// Close turns every LED off and releases GPIO resources.
	Close() error
}

// InputLine describes one button input.
type InputLine struct {
	Pin    int  // BCM numbering
	PullUp bool // bias pull-up (active-low button to ground); otherwise pull-down
}

// NoPin marks an output as not fitted.
const NoPin = -1

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Default pin assignments (BCM numbering).
const (
	DefaultPinSOS     = 17 // red
	DefaultPinAssist  = 27 // yellow
	DefaultPinConfirm = 22 // green
	DefaultPinAccept  = 23 // blue

	DefaultPinLEDConnection = 5
	DefaultPinLEDBattery    = 6
	DefaultPinLEDEmergency  = 13
)
