// Package status provides a thread-safe status tracker for the boiler controller.
// The control loop writes to it; the dashboard and MQTT events read from it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/boiler-controller/internal/store"
)

// Phase is the controller lifecycle phase.
type Phase string

const (
	PhaseStarting     Phase = "STARTING"
	PhaseRunning      Phase = "RUNNING"
	PhaseShuttingDown Phase = "SHUTTING_DOWN"
	PhaseStopped      Phase = "STOPPED"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{PhaseStarting, PhaseRunning, PhaseShuttingDown, PhaseStopped}

// Config contains controller configuration for display.
type Config struct {
	SetPoint             float64
	Kp, Ki, Kd           float64
	MaxIntegral          float64
	MaxErrorAccumulation float64
	SamplePeriodMs       int64
	PWMFrequency         float64
	RetentionCapacity    int
	RelayPin             int
	Broker               string
	HTTPAddr             string
}

// Counts tallies loop outcomes since start.
type Counts struct {
	Cycles      int
	Skipped     int
	StoreFaults int
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Phase         Phase
	SensorID      string
	Last          store.Sample
	HasSample     bool
	Counts        Counts
	Fault         string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker in PhaseStarting.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Phase:     PhaseStarting,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetPhase records a lifecycle transition.
func (t *Tracker) SetPhase(p Phase) {
	t.mu.Lock()
	t.snap.Phase = p
	t.mu.Unlock()
}

// SetSensor records the selected thermometer.
func (t *Tracker) SetSensor(id string) {
	t.mu.Lock()
	t.snap.SensorID = id
	t.mu.Unlock()
}

// RecordSample stores the latest completed cycle.
func (t *Tracker) RecordSample(s store.Sample) {
	t.mu.Lock()
	t.snap.Last = s
	t.snap.HasSample = true
	t.snap.Counts.Cycles++
	t.mu.Unlock()
}

// RecordSkip counts a cycle skipped on a not-ready reading.
func (t *Tracker) RecordSkip() {
	t.mu.Lock()
	t.snap.Counts.Skipped++
	t.mu.Unlock()
}

// RecordStoreFault counts a failed append.
func (t *Tracker) RecordStoreFault() {
	t.mu.Lock()
	t.snap.Counts.StoreFaults++
	t.mu.Unlock()
}

// SetFault records the fault that ended the run.
func (t *Tracker) SetFault(msg string) {
	t.mu.Lock()
	t.snap.Fault = msg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
