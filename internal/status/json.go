package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Phase         string      `json:"phase"`
	Sensor        string      `json:"sensor,omitempty"`
	Last          *SampleJSON `json:"last,omitempty"`
	Fault         string      `json:"fault,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"counts"`
	Config        ConfigJSON  `json:"config"`
}

// SampleJSON is the JSON representation of the last cycle.
type SampleJSON struct {
	Timestamp    string  `json:"timestamp"`
	Temperature  float64 `json:"temp"`
	Proportional float64 `json:"proportional"`
	Integral     float64 `json:"integral"`
	Derivative   float64 `json:"derivative"`
	DutyCycle    float64 `json:"duty_cycle"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of loop counts.
type CountsJSON struct {
	Cycles      int `json:"cycles"`
	Skipped     int `json:"skipped"`
	StoreFaults int `json:"store_faults"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	SetPoint             float64 `json:"set_point"`
	Kp                   float64 `json:"K_p"`
	Ki                   float64 `json:"K_i"`
	Kd                   float64 `json:"K_d"`
	MaxIntegral          float64 `json:"max_i"`
	MaxErrorAccumulation float64 `json:"max_error_accumulation"`
	SamplePeriodMs       int64   `json:"sample_period_ms"`
	PWMFrequency         float64 `json:"pwm_frequency"`
	RetentionCapacity    int     `json:"max_entries"`
	RelayPin             int     `json:"relay_pin"`
	Broker               string  `json:"broker"`
	HTTPAddr             string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	inner := StatusInner{
		Phase:         phase,
		Sensor:        snap.SensorID,
		Fault:         snap.Fault,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Cycles:      snap.Counts.Cycles,
			Skipped:     snap.Counts.Skipped,
			StoreFaults: snap.Counts.StoreFaults,
		},
		Config: ConfigJSON{
			SetPoint:             snap.Config.SetPoint,
			Kp:                   snap.Config.Kp,
			Ki:                   snap.Config.Ki,
			Kd:                   snap.Config.Kd,
			MaxIntegral:          snap.Config.MaxIntegral,
			MaxErrorAccumulation: snap.Config.MaxErrorAccumulation,
			SamplePeriodMs:       snap.Config.SamplePeriodMs,
			PWMFrequency:         snap.Config.PWMFrequency,
			RetentionCapacity:    snap.Config.RetentionCapacity,
			RelayPin:             snap.Config.RelayPin,
			Broker:               snap.Config.Broker,
			HTTPAddr:             snap.Config.HTTPAddr,
		},
	}

	if snap.HasSample {
		inner.Last = &SampleJSON{
			Timestamp:    snap.Last.Timestamp.UTC().Format(time.RFC3339Nano),
			Temperature:  snap.Last.Temperature,
			Proportional: snap.Last.Proportional,
			Integral:     snap.Last.Integral,
			Derivative:   snap.Last.Derivative,
			DutyCycle:    snap.Last.DutyCycle,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
