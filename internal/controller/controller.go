// Package controller runs the closed control loop: read the thermometer, step
// the PID, drive the heating element, record the sample, sleep, repeat.
//
// The loop moves through Starting, Running and ShuttingDown. Whatever ends the
// run, the actuator is driven to 0% and released before anything else is
// torn down.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/boiler-controller/internal/actuator"
	"github.com/sweeney/boiler-controller/internal/config"
	"github.com/sweeney/boiler-controller/internal/metrics"
	"github.com/sweeney/boiler-controller/internal/mqtt"
	"github.com/sweeney/boiler-controller/internal/pid"
	"github.com/sweeney/boiler-controller/internal/sensor"
	"github.com/sweeney/boiler-controller/internal/status"
	"github.com/sweeney/boiler-controller/internal/store"
)

// Fault classes, used in logs, metrics and the SHUTDOWN reason.
const (
	FaultStartup    = "startup"
	FaultSensor     = "sensor"
	FaultActuator   = "actuator"
	FaultStore      = "store"
	FaultNotReady   = "not_ready"
	FaultBadReading = "bad_reading"
)

// Fault is a fatal error tagged with its class.
type Fault struct {
	Class string
	Err   error
}

func (f *Fault) Error() string { return f.Err.Error() }

func (f *Fault) Unwrap() error { return f.Err }

// Thermometer is the selected temperature sensor.
type Thermometer interface {
	ID() string
	Read() (celsius float64, ok bool, err error)
}

// Recorder is the write side of the time-series store.
type Recorder interface {
	Append(ctx context.Context, s store.Sample) error
	Close() error
}

// Deps are the collaborators the loop acquires and talks to. OpenSensor,
// OpenActuator and OpenStore are required; the rest may be nil.
type Deps struct {
	OpenSensor   func() (Thermometer, error)
	OpenActuator actuator.Opener
	OpenStore    func() (Recorder, error)

	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Metrics   *metrics.Metrics
	Log       *logrus.Entry

	// Now and After default to time.Now and time.After.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Controller owns the hardware for one run.
type Controller struct {
	cfg      config.Controller
	gains    pid.Gains
	relayPin int
	deps     Deps
	log      *logrus.Entry

	sensor Thermometer
	out    actuator.Output
	store  Recorder
	state  pid.State

	shutdownOnce sync.Once
}

// New creates a Controller. No hardware is touched until Run.
func New(cfg config.Controller, relayPin int, deps Deps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.After == nil {
		deps.After = time.After
	}
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		cfg:      cfg,
		gains:    cfg.Gains(),
		relayPin: relayPin,
		deps:     deps,
		log:      log,
	}
}

// Run starts the hardware and cycles until ctx is cancelled or a fatal fault
// occurs. It returns nil on cancellation and the fault otherwise. In every
// case the actuator has been set to 0% and released when Run returns.
func (c *Controller) Run(ctx context.Context) (err error) {
	c.setPhase(status.PhaseStarting)
	defer func() {
		c.shutdown(ctx, err)
	}()

	if err := c.start(); err != nil {
		return c.fatal(FaultStartup, err)
	}

	c.setPhase(status.PhaseRunning)
	c.announceStartup()
	c.log.WithFields(logrus.Fields{
		"sensor":        c.sensor.ID(),
		"relay_pin":     c.relayPin,
		"set_point":     c.cfg.SetPoint,
		"K_p":           c.cfg.Kp,
		"K_i":           c.cfg.Ki,
		"K_d":           c.cfg.Kd,
		"sample_period": c.cfg.SamplePeriod,
		"pwm_frequency": c.cfg.PWMFrequency,
	}).Info("controller running")
	if c.cfg.Kd != 0 {
		c.log.WithField("K_d", c.cfg.Kd).Warn("K_d is configured but the derivative term is weighted by K_p")
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.deps.After(c.cfg.SamplePeriod):
		}
	}
}

// start acquires the sensor, the store, then the actuator. Whatever was
// acquired before a failure is released by shutdown.
func (c *Controller) start() error {
	th, err := c.deps.OpenSensor()
	if err != nil {
		return &Fault{Class: FaultSensor, Err: fmt.Errorf("open sensor: %w", err)}
	}
	c.sensor = th
	if c.deps.Tracker != nil {
		c.deps.Tracker.SetSensor(th.ID())
	}

	st, err := c.deps.OpenStore()
	if err != nil {
		return &Fault{Class: FaultStore, Err: fmt.Errorf("open store: %w", err)}
	}
	c.store = st

	out, err := c.deps.OpenActuator(c.relayPin, c.cfg.PWMFrequency)
	if err != nil {
		return &Fault{Class: FaultActuator, Err: fmt.Errorf("open actuator: %w", err)}
	}
	c.out = out

	c.state = pid.NewState(c.deps.Now())
	c.deps.Metrics.SetPoint(c.cfg.SetPoint)
	return nil
}

// cycle runs one control decision. A non-nil error is fatal.
func (c *Controller) cycle(ctx context.Context) error {
	started := time.Now()

	temp, ok, err := c.sensor.Read()
	switch {
	case errors.Is(err, sensor.ErrBadReading):
		c.skip(FaultBadReading, err)
		return nil
	case err != nil:
		return c.fatal(FaultSensor, fmt.Errorf("read sensor: %w", err))
	case !ok:
		c.skip(FaultNotReady, nil)
		return nil
	}

	now := c.deps.Now()
	res := pid.Step(c.gains, c.state, temp, now)

	if err := c.out.SetDutyCycle(res.Duty); err != nil {
		if !errors.Is(err, actuator.ErrActuator) {
			err = fmt.Errorf("%w: %v", actuator.ErrActuator, err)
		}
		return c.fatal(FaultActuator, fmt.Errorf("set duty cycle %.2f: %w", res.Duty, err))
	}
	c.state = res.State

	sample := store.Sample{
		Timestamp:    now,
		Temperature:  temp,
		Proportional: res.Terms.Proportional,
		Integral:     res.Terms.Integral,
		Derivative:   res.Terms.Derivative,
		DutyCycle:    res.Duty,
	}

	// The actuator has been commanded; a failed write only leaves a gap.
	if err := c.store.Append(context.WithoutCancel(ctx), sample); err != nil {
		c.fault(FaultStore, err)
		if c.deps.Tracker != nil {
			c.deps.Tracker.RecordStoreFault()
		}
	}

	if c.deps.Publisher != nil {
		if err := c.deps.Publisher.PublishSample(sample); err != nil {
			c.log.WithError(err).Warn("publish sample failed")
		}
	}
	if c.deps.Tracker != nil {
		c.deps.Tracker.RecordSample(sample)
	}
	c.deps.Metrics.Cycle(temp, res.Terms.Proportional, res.Terms.Integral, res.Terms.Derivative, res.Duty, time.Since(started))

	c.log.WithFields(logrus.Fields{
		"temp":       temp,
		"error":      res.Terms.Proportional,
		"integral":   res.Terms.Integral,
		"derivative": res.Terms.Derivative,
		"duty":       res.Duty,
	}).Debug("cycle")
	return nil
}

// skip records a cycle with no usable reading. State is not advanced.
func (c *Controller) skip(class string, err error) {
	entry := c.log.WithField("fault", class)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("no valid reading, skipping cycle")
	c.deps.Metrics.Skipped()
	if c.deps.Tracker != nil {
		c.deps.Tracker.RecordSkip()
	}
}

func (c *Controller) fault(class string, err error) {
	c.log.WithField("fault", class).WithError(err).Error("fault")
	c.deps.Metrics.Fault(class)
}

// fatal logs err and returns it as a *Fault. Startup failures keep the class
// of the collaborator that failed.
func (c *Controller) fatal(class string, err error) error {
	var f *Fault
	if !errors.As(err, &f) {
		f = &Fault{Class: class, Err: err}
	}
	c.fault(f.Class, f.Err)
	return f
}

// shutdown releases the actuator first, then the store, then announces the
// shutdown. It runs at most once.
func (c *Controller) shutdown(ctx context.Context, cause error) {
	c.shutdownOnce.Do(func() {
		c.setPhase(status.PhaseShuttingDown)

		if c.out != nil {
			if err := c.out.Close(); err != nil {
				c.log.WithField("fault", FaultActuator).WithError(err).Error("release actuator")
			} else {
				c.log.Info("actuator off and released")
			}
			c.deps.Metrics.Duty(0)
		}

		if c.store != nil {
			if err := c.store.Close(); err != nil {
				c.log.WithField("fault", FaultStore).WithError(err).Error("close store")
			}
		}

		reason := shutdownReason(ctx, cause)
		if c.deps.Tracker != nil && cause != nil {
			c.deps.Tracker.SetFault(cause.Error())
		}
		c.announce(mqtt.EventShutdown, reason)
		c.setPhase(status.PhaseStopped)
		c.log.WithField("reason", reason).Info("controller stopped")
	})
}

// shutdownReason names why the loop stopped: the fault class for faults, the
// cancellation cause otherwise.
func shutdownReason(ctx context.Context, cause error) string {
	var f *Fault
	if errors.As(cause, &f) {
		return strings.ToUpper(f.Class) + "_FAULT"
	}
	if cause != nil {
		return "FAULT"
	}
	if c := context.Cause(ctx); c != nil && !errors.Is(c, context.Canceled) {
		return c.Error()
	}
	return "CANCELLED"
}

func (c *Controller) announceStartup() {
	c.announce(mqtt.EventStartup, "")
}

func (c *Controller) announce(event, reason string) {
	pub := c.deps.Publisher
	if pub == nil {
		return
	}
	e := mqtt.SystemEvent{
		Timestamp: c.deps.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if c.deps.Tracker != nil {
		if cs, ok := pub.(mqtt.ConnectionStatus); ok {
			c.deps.Tracker.SetMQTTConnected(cs.IsConnected())
		}
		e.RawPayload = status.FormatStatusEvent(c.deps.Tracker.Snapshot(), event, reason)
	}
	if err := pub.PublishSystem(e); err != nil {
		c.log.WithError(err).WithField("event", event).Warn("publish system event failed")
	}
}

func (c *Controller) setPhase(p status.Phase) {
	if c.deps.Tracker != nil {
		c.deps.Tracker.SetPhase(p)
	}
	names := make([]string, len(status.Phases))
	for i, ph := range status.Phases {
		names[i] = strings.ToLower(string(ph))
	}
	c.deps.Metrics.Phase(strings.ToLower(string(p)), names)
	c.log.WithField("phase", p).Debug("phase")
}
