package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/boiler-controller/internal/store"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func sample(temp, duty float64) store.Sample {
	return store.Sample{
		Timestamp:    start.Add(5 * time.Second),
		Temperature:  temp,
		Proportional: 95 - temp,
		Integral:     2.5,
		Derivative:   0,
		DutyCycle:    duty,
	}
}

func TestNewTracker(t *testing.T) {
	cfg := Config{SetPoint: 95, SamplePeriodMs: 5000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Phase != PhaseStarting {
		t.Errorf("Phase: got %q, want STARTING", snap.Phase)
	}
	if snap.Config.SamplePeriodMs != 5000 {
		t.Errorf("Config.SamplePeriodMs: got %d, want 5000", snap.Config.SamplePeriodMs)
	}
	if snap.HasSample {
		t.Error("expected HasSample=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestRecordSample(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.RecordSample(sample(90, 50.25))
	tr.RecordSample(sample(91, 40))

	snap := tr.Snapshot()
	if !snap.HasSample {
		t.Fatal("expected HasSample=true")
	}
	if snap.Last.Temperature != 91 || snap.Last.DutyCycle != 40 {
		t.Errorf("Last: got %+v", snap.Last)
	}
	if snap.Counts.Cycles != 2 {
		t.Errorf("Counts.Cycles: got %d, want 2", snap.Counts.Cycles)
	}
}

func TestCounters(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.RecordSkip()
	tr.RecordSkip()
	tr.RecordStoreFault()

	c := tr.Snapshot().Counts
	if c.Skipped != 2 || c.StoreFaults != 1 || c.Cycles != 0 {
		t.Errorf("Counts: got %+v", c)
	}
}

func TestPhaseAndFault(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.SetPhase(PhaseRunning)
	tr.SetSensor("28-0316a2795bff")
	tr.SetFault("sensor: device missing")

	snap := tr.Snapshot()
	if snap.Phase != PhaseRunning {
		t.Errorf("Phase: got %q", snap.Phase)
	}
	if snap.SensorID != "28-0316a2795bff" {
		t.Errorf("SensorID: got %q", snap.SensorID)
	}
	if snap.Fault != "sensor: device missing" {
		t.Errorf("Fault: got %q", snap.Fault)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordSample(sample(90, 50))

	snap1 := tr.Snapshot()

	tr.RecordSample(sample(94, 5))
	tr.SetPhase(PhaseShuttingDown)

	if snap1.Last.Temperature != 90 {
		t.Error("snapshot should be a copy; Last was modified")
	}
	if snap1.Phase != PhaseStarting {
		t.Error("snapshot should be a copy; Phase was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Phase:         PhaseRunning,
		SensorID:      "28-0316a2795bff",
		Last:          sample(90, 50.25),
		HasSample:     true,
		Counts:        Counts{Cycles: 5, Skipped: 1},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{SetPoint: 95, Kp: 5, SamplePeriodMs: 5000, RetentionCapacity: 10000, Broker: "tcp://localhost:1883"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Phase != "RUNNING" {
		t.Errorf("Phase: got %q, want RUNNING", parsed.Status.Phase)
	}
	if parsed.Status.Last == nil {
		t.Fatal("expected Last in JSON")
	}
	if parsed.Status.Last.Temperature != 90 || parsed.Status.Last.DutyCycle != 50.25 {
		t.Errorf("Last: got %+v", parsed.Status.Last)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Counts.Cycles != 5 || parsed.Status.Counts.Skipped != 1 {
		t.Errorf("Counts: got %+v", parsed.Status.Counts)
	}
	if parsed.Status.Config.RetentionCapacity != 10000 {
		t.Errorf("Config.RetentionCapacity: got %d", parsed.Status.Config.RetentionCapacity)
	}
	if parsed.Status.Event != "" || parsed.Status.Reason != "" {
		t.Errorf("expected empty Event/Reason for web format, got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatJSONOmitsLastBeforeFirstCycle(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	if _, exists := status["last"]; exists {
		t.Error("last should be omitted before the first cycle")
	}
	if status["phase"] != "UNKNOWN" {
		t.Errorf("phase: got %v, want UNKNOWN", status["phase"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Phase:     PhaseShuttingDown,
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Fault:     "actuator fault: gpio write",
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "ACTUATOR_FAULT")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "ACTUATOR_FAULT" {
		t.Errorf("Reason: got %q, want ACTUATOR_FAULT", parsed.Status.Reason)
	}
	if parsed.Status.Fault != "actuator fault: gpio write" {
		t.Errorf("Fault: got %q", parsed.Status.Fault)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.RecordSample(sample(float64(i%100), 10))
			tr.RecordSkip()
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
	if got := tr.Snapshot().Counts.Cycles; got != 1000 {
		t.Errorf("Cycles: got %d, want 1000", got)
	}
}
