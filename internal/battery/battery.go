// Package battery reports the device's charge level.
package battery

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultLevel is the simulated level used when no fuel gauge is fitted.
const DefaultLevel = 85

// DefaultSysfsPath is the kernel's capacity file for the first battery.
const DefaultSysfsPath = "/sys/class/power_supply/BAT0/capacity"

// Source kinds accepted by New.
const (
	KindFixed = "fixed"
	KindSysfs = "sysfs"
)

// Source yields the battery level in percent.
type Source interface {
	Level() (int, error)
}

// Fixed always reports the same level.
type Fixed int

// Level returns the fixed level, clamped to 0-100.
func (f Fixed) Level() (int, error) {
	return Clamp(int(f)), nil
}

// Sysfs reads a power_supply capacity file.
type Sysfs struct {
	Path string
}

// Level reads and parses the capacity file.
func (s Sysfs) Level() (int, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, errors.Wrap(err, "read battery capacity")
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrapf(err, "parse battery capacity %q", strings.TrimSpace(string(data)))
	}
	return Clamp(v), nil
}

// Clamp limits a level to 0-100.
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// New builds a Source of the given kind.
func New(kind string, level int, path string) (Source, error) {
	switch kind {
	case "", KindFixed:
		return Fixed(level), nil
	case KindSysfs:
		if path == "" {
			path = DefaultSysfsPath
		}
		return Sysfs{Path: path}, nil
	}
	return nil, errors.Errorf("unknown battery source %q", kind)
}
