package actuator

import "errors"

// FakeOutput records duty cycle commands for test assertions.
type FakeOutput struct {
	// Pin and Frequency are the values passed to the Opener.
	Pin       int
	Frequency float64

	// Duties contains every accepted SetDutyCycle value in order.
	Duties []float64

	// Duty is the current duty cycle.
	Duty float64

	// SetError, if set, is returned by SetDutyCycle.
	SetError error

	// Closed tracks if Close was called; CloseCalls counts calls.
	Closed     bool
	CloseCalls int

	// OnClose, if set, runs at the first Close.
	OnClose func()
}

// NewFakeOutput creates a FakeOutput at 0% duty.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Opener returns an Opener that hands out f.
func (f *FakeOutput) Opener() Opener {
	return func(pin int, frequencyHz float64) (Output, error) {
		f.Pin = pin
		f.Frequency = frequencyHz
		return f, nil
	}
}

// SetDutyCycle records percent.
func (f *FakeOutput) SetDutyCycle(percent float64) error {
	if f.SetError != nil {
		return f.SetError
	}
	if f.Closed {
		return errors.New("fake output closed")
	}
	if err := validateDuty(percent); err != nil {
		return err
	}
	f.Duty = percent
	f.Duties = append(f.Duties, percent)
	return nil
}

// Close forces the duty cycle to zero and marks the output closed.
func (f *FakeOutput) Close() error {
	f.CloseCalls++
	if f.Closed {
		return nil
	}
	f.Duty = 0
	f.Closed = true
	if f.OnClose != nil {
		f.OnClose()
	}
	return nil
}
