// Package device resolves the stable identifier the daemon publishes under.
package device

import (
	"net"
	"strings"

	"github.com/pkg/errors"
)

// listInterfaces is replaced in tests.
var listInterfaces = net.Interfaces

// ID returns override when set. Otherwise it returns the upper-case MAC
// address of iface, or of the first non-loopback interface with a hardware
// address when iface is empty.
func ID(override, iface string) (string, error) {
	if override != "" {
		return override, nil
	}

	ifaces, err := listInterfaces()
	if err != nil {
		return "", errors.Wrap(err, "list network interfaces")
	}

	for _, i := range ifaces {
		if iface != "" && i.Name != iface {
			continue
		}
		if i.Flags&net.FlagLoopback != 0 || len(i.HardwareAddr) == 0 {
			continue
		}
		return strings.ToUpper(i.HardwareAddr.String()), nil
	}

	if iface != "" {
		return "", errors.Errorf("interface %q not found or has no hardware address", iface)
	}
	return "", errors.New("no interface with a hardware address")
}
