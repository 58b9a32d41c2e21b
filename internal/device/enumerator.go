package device

import (
	"strings"

	"go.bug.st/serial/enumerator"
)

// Enumerator lists serial ports present on the host as port → description.
type Enumerator interface {
	Ports() (map[string]string, error)
}

type EnumeratorFunc func() (map[string]string, error)

func (f EnumeratorFunc) Ports() (map[string]string, error) {
	return f()
}

// SerialEnumerator reads the host's serial ports through go.bug.st/serial.
type SerialEnumerator struct{}

func (SerialEnumerator) Ports() (map[string]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make(map[string]string, len(details))
	for _, port := range details {
		if port == nil || strings.TrimSpace(port.Name) == "" {
			continue
		}
		ports[port.Name] = describe(port)
	}
	return ports, nil
}

func describe(port *enumerator.PortDetails) string {
	switch {
	case port.Product != "":
		return port.Product
	case port.IsUSB && port.VID != "":
		description := "USB " + port.VID + ":" + port.PID
		if port.SerialNumber != "" {
			description += " (" + port.SerialNumber + ")"
		}
		return description
	default:
		return port.Name
	}
}
