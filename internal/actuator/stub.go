//go:build !linux

package actuator

import "fmt"

// NewOpener returns an Opener that always fails on non-Linux platforms.
func NewOpener(chipName string) Opener {
	return func(pin int, frequencyHz float64) (Output, error) {
		return OpenGPIO(chipName, pin, frequencyHz)
	}
}

// OpenGPIO is not available on non-Linux platforms.
func OpenGPIO(chipName string, pin int, frequencyHz float64) (*SoftPWM, error) {
	return nil, fmt.Errorf("%w: gpio not supported on this platform (requires Linux)", ErrActuator)
}
