//go:build linux

package gpio

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads button inputs from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealReader requests the given lines as inputs on chip.
func NewRealReader(chipName string, inputs []InputLine) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, errors.Wrap(err, "open gpio chip")
	}

	r := &RealReader{chip: chip}
	for _, in := range inputs {
		bias := gpiocdev.WithPullDown
		if in.PullUp {
			bias = gpiocdev.WithPullUp
		}
		line, err := chip.RequestLine(in.Pin, gpiocdev.AsInput, bias)
		if err != nil {
			r.Close()
			return nil, errors.Wrapf(err, "request input pin %d", in.Pin)
		}
		r.lines = append(r.lines, line)
	}
	return r, nil
}

// Read returns the raw level of each line. 1 = high.
func (r *RealReader) Read() ([]bool, error) {
	levels := make([]bool, len(r.lines))
	for i, line := range r.lines {
		v, err := line.Value()
		if err != nil {
			return nil, errors.Wrapf(err, "read pin %d", line.Offset())
		}
		levels[i] = v == 1
	}
	return levels, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	var errs []error
	for _, line := range r.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, errors.Wrapf(err, "reconfigure pin %d", line.Offset()))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close pin %d", line.Offset()))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealWriter drives LEDs on actual hardware.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines map[LED]*gpiocdev.Line
}

// NewRealWriter requests each fitted LED pin as an output, initially off.
// Pins set to NoPin are skipped.
func NewRealWriter(chipName string, pins map[LED]int) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, errors.Wrap(err, "open gpio chip")
	}

	w := &RealWriter{chip: chip, lines: make(map[LED]*gpiocdev.Line)}
	for _, led := range LEDs {
		pin, ok := pins[led]
		if !ok || pin == NoPin {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			w.Close()
			return nil, errors.Wrapf(err, "request %s LED pin %d", led, pin)
		}
		w.lines[led] = line
	}
	return w, nil
}

// Set drives the LED.
func (w *RealWriter) Set(led LED, on bool) error {
	line, ok := w.lines[led]
	if !ok {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return errors.Wrapf(err, "set %s LED", led)
	}
	return nil
}

// Close turns every LED off, returns the pins to input with pull-down and
// releases them.
func (w *RealWriter) Close() error {
	var errs []error
	for led, line := range w.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, errors.Wrapf(err, "clear %s LED", led))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, errors.Wrapf(err, "reconfigure %s LED", led))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close %s LED", led))
		}
	}
	w.lines = nil
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}
