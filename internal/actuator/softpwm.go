package actuator

import (
	"fmt"
	"sync"
	"time"
)

// line is the digital output a SoftPWM toggles.
type line interface {
	SetValue(v int) error
	Close() error
}

// SoftPWM generates a PWM signal by toggling a digital line from a goroutine.
// Periods are long (the default is one second), so scheduler jitter is
// negligible relative to the element's thermal response.
type SoftPWM struct {
	line   line
	period time.Duration

	mu      sync.Mutex
	duty    float64
	lastErr error

	update    chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newSoftPWM(l line, frequencyHz float64) (*SoftPWM, error) {
	if err := validateFrequency(frequencyHz); err != nil {
		return nil, err
	}
	period := time.Duration(float64(time.Second) / frequencyHz)
	if period <= 0 {
		return nil, fmt.Errorf("%w: pwm frequency %v too high", ErrActuator, frequencyHz)
	}
	if err := l.SetValue(0); err != nil {
		return nil, fmt.Errorf("%w: drive line low: %v", ErrActuator, err)
	}

	p := &SoftPWM{
		line:    l,
		period:  period,
		update:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Period returns the PWM period.
func (p *SoftPWM) Period() time.Duration {
	return p.period
}

// SetDutyCycle changes the duty cycle from the next period on. An error from
// the toggling goroutine since the previous call is returned here.
func (p *SoftPWM) SetDutyCycle(percent float64) error {
	if err := validateDuty(percent); err != nil {
		return err
	}

	p.mu.Lock()
	p.duty = percent
	err := p.lastErr
	p.lastErr = nil
	p.mu.Unlock()

	select {
	case <-p.done:
		return fmt.Errorf("%w: output closed", ErrActuator)
	default:
	}
	select {
	case p.update <- struct{}{}:
	default:
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrActuator, err)
	}
	return nil
}

// Duty returns the current duty cycle.
func (p *SoftPWM) Duty() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// Close stops the generator, drives the line low and releases it.
func (p *SoftPWM) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.duty = 0
		p.mu.Unlock()

		close(p.done)
		<-p.stopped

		var errs []error
		if err := p.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive line low: %w", err))
		}
		if err := p.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
		if len(errs) > 0 {
			p.closeErr = fmt.Errorf("close errors: %v", errs)
		}
	})
	return p.closeErr
}

func (p *SoftPWM) run() {
	defer close(p.stopped)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	level := 0
	set := func(v int) {
		if v == level {
			return
		}
		if err := p.line.SetValue(v); err != nil {
			p.mu.Lock()
			p.lastErr = err
			p.mu.Unlock()
			return
		}
		level = v
	}
	// wait returns false when the generator is closing.
	wait := func(d time.Duration) bool {
		timer.Reset(d)
		select {
		case <-p.done:
			if !timer.Stop() {
				<-timer.C
			}
			return false
		case <-timer.C:
			return true
		}
	}

	for {
		duty := p.Duty()
		on := time.Duration(float64(p.period) * duty / 100)

		switch {
		case on <= 0:
			set(0)
			select {
			case <-p.done:
				return
			case <-p.update:
			}
		case on >= p.period:
			set(1)
			select {
			case <-p.done:
				return
			case <-p.update:
			}
		default:
			set(1)
			if !wait(on) {
				return
			}
			set(0)
			if !wait(p.period - on) {
				return
			}
		}
	}
}
