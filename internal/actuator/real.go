//go:build linux

package actuator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// gpioLine owns a requested output line and its chip.
type gpioLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpioLine) SetValue(v int) error {
	return g.line.SetValue(v)
}

// Close returns the line to an input with pull-down, matching the Pi boot
// default, before releasing it.
func (g *gpioLine) Close() error {
	var errs []error
	if err := g.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := g.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if err := g.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// NewOpener returns an Opener that requests lines on the named GPIO chip.
func NewOpener(chipName string) Opener {
	if chipName == "" {
		chipName = DefaultChip
	}
	return func(pin int, frequencyHz float64) (Output, error) {
		return OpenGPIO(chipName, pin, frequencyHz)
	}
}

// OpenGPIO requests pin as an output driven low and starts a software PWM
// generator on it at 0% duty.
func OpenGPIO(chipName string, pin int, frequencyHz float64) (*SoftPWM, error) {
	if pin < 0 {
		return nil, fmt.Errorf("%w: invalid pin %d", ErrActuator, pin)
	}
	if err := validateFrequency(frequencyHz); err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("%w: open gpio chip: %v", ErrActuator, err)
	}

	l, err := chip.RequestLine(pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(Consumer))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("%w: request pin %d: %v", ErrActuator, pin, err)
	}

	pwm, err := newSoftPWM(&gpioLine{chip: chip, line: l}, frequencyHz)
	if err != nil {
		l.Close()
		chip.Close()
		return nil, err
	}
	return pwm, nil
}
