// Package sensor reads digital thermometers attached to a one-wire bus.
// The real implementation uses the Linux w1 sysfs interface.
// The fake implementation allows testing without hardware.
package sensor

import (
	"errors"
	"fmt"
)

// Sensor faults. These are unrecoverable for the controller.
var (
	ErrNoneFound      = errors.New("sensor: no thermometers found")
	ErrDeviceMissing  = errors.New("sensor: device missing")
	ErrBusUnavailable = errors.New("sensor: one-wire bus unavailable")
)

// ErrBadReading reports a device file that could not be parsed even though the
// device claimed a valid conversion. It is transient.
var ErrBadReading = errors.New("sensor: malformed reading")

// Bus enumerates and reads thermometers.
type Bus interface {
	// Enumerate returns the IDs of all attached thermometers in
	// lexicographic order.
	Enumerate() ([]string, error)

	// Read returns the temperature in °C for the given thermometer.
	// ok is false when the device reports that no valid conversion is
	// available yet; that is not an error.
	Read(id string) (celsius float64, ok bool, err error)
}

// Thermometer is a single selected sensor on a Bus.
type Thermometer struct {
	bus Bus
	id  string
}

// Open selects a thermometer on bus. An empty id selects the first sensor in
// lexicographic order.
func Open(bus Bus, id string) (*Thermometer, error) {
	ids, err := bus.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoneFound
	}

	if id == "" {
		return &Thermometer{bus: bus, id: ids[0]}, nil
	}
	for _, candidate := range ids {
		if candidate == id {
			return &Thermometer{bus: bus, id: id}, nil
		}
	}
	return nil, fmt.Errorf("thermometer %q: %w", id, ErrNoneFound)
}

// ID returns the selected sensor ID.
func (t *Thermometer) ID() string {
	return t.id
}

// Read returns the current temperature, or ok=false if the sensor is not ready.
func (t *Thermometer) Read() (float64, bool, error) {
	return t.bus.Read(t.id)
}
