// Package pid contains the pure proportional-integral-derivative step used by
// the boiler controller.
// This package has NO external dependencies (no GPIO, storage, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package pid

import (
	"math"
	"time"
)

// ColdStartC is the vessel temperature below which the integral is held at zero.
const ColdStartC = 80.0

// Duty cycle output range, in percent.
const (
	MinDuty = 0.0
	MaxDuty = 100.0
)

// Gains holds the tuning parameters for a Step.
type Gains struct {
	SetPoint float64 // target temperature, °C
	Kp       float64
	Ki       float64
	// Kd is carried for configuration completeness. The output formula weights
	// the derivative by Kp; see Step.
	Kd                   float64
	MaxIntegral          float64
	MaxErrorAccumulation float64 // °C
}

// State is the controller memory carried between cycles.
type State struct {
	Integral float64
	Error    float64
	Time     time.Time
}

// NewState returns the cold state for a loop starting at now.
func NewState(now time.Time) State {
	return State{Time: now}
}

// Terms are the intermediate quantities computed in one step.
type Terms struct {
	Proportional float64 // the control error
	Integral     float64
	Derivative   float64
}

// Result is the output of a single Step.
type Result struct {
	Duty  float64
	Terms Terms
	State State
}

// Step computes the duty cycle for a new temperature observation.
//
// Integration is trapezoidal. When the candidate integral exceeds
// MaxIntegral it is reset to zero (not clamped). Otherwise, errors larger than
// MaxErrorAccumulation freeze the integral, and temperatures below ColdStartC
// force it to zero.
//
// The derivative contribution is Kp*derivative, not Kd*derivative.
func Step(g Gains, prev State, temperature float64, now time.Time) Result {
	dt := now.Sub(prev.Time).Seconds()

	errNow := g.SetPoint - temperature

	derivative := 0.0
	accumDt := 0.0
	if dt > 0 {
		derivative = (errNow - prev.Error) / dt
		accumDt = dt
	}

	candidate := prev.Integral + 0.5*(errNow+prev.Error)*accumDt

	var integral float64
	switch {
	case candidate > g.MaxIntegral:
		integral = 0
	case math.Abs(errNow) > g.MaxErrorAccumulation:
		integral = prev.Integral
	case temperature < ColdStartC:
		integral = 0
	default:
		integral = candidate
	}

	duty := Clamp(g.Kp*errNow+g.Ki*integral+g.Kp*derivative, MinDuty, MaxDuty)

	return Result{
		Duty: duty,
		Terms: Terms{
			Proportional: errNow,
			Integral:     integral,
			Derivative:   derivative,
		},
		State: State{
			Integral: integral,
			Error:    errNow,
			Time:     now,
		},
	}
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
