// Package actuator drives the boiler heating element.
// The real implementation toggles a GPIO line through the Linux GPIO
// character device to produce a slow PWM signal.
// The fake implementation allows testing without hardware.
package actuator

import (
	"errors"
	"fmt"
	"math"
)

// ErrActuator wraps every failure to command the heating element.
var ErrActuator = errors.New("actuator fault")

// Output sets the heating element's duty cycle.
//
// Implementations start at 0% and must drive the element off before
// releasing the pin in Close. Close is safe to call more than once.
type Output interface {
	// SetDutyCycle sets the fraction of each PWM period the element is on,
	// in percent [0, 100].
	SetDutyCycle(percent float64) error

	// Close forces the element off and releases the pin.
	Close() error
}

// Opener initializes an Output on a BCM pin at the given PWM frequency.
type Opener func(pin int, frequencyHz float64) (Output, error)

// DefaultChip is the GPIO chip carrying the Raspberry Pi header pins.
const DefaultChip = "gpiochip0"

// Consumer labels the requested line in the kernel.
const Consumer = "boiler-controller"

func validateDuty(percent float64) error {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return fmt.Errorf("%w: duty %v outside [0, 100]", ErrActuator, percent)
	}
	return nil
}

func validateFrequency(hz float64) error {
	if math.IsNaN(hz) || hz <= 0 || math.IsInf(hz, 0) {
		return fmt.Errorf("%w: invalid pwm frequency %v", ErrActuator, hz)
	}
	return nil
}
