// Package mqtt publishes controller telemetry, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/boiler-controller/internal/store"
)

// TopicSamples carries one message per completed control cycle.
const TopicSamples = "energy/boiler/controller/samples"

// TopicSystem carries lifecycle events.
const TopicSystem = "energy/boiler/controller/system"

// Lifecycle event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventReconnected = "RECONNECTED"
)

// Publisher publishes telemetry to MQTT.
type Publisher interface {
	// PublishSample sends a completed cycle to the broker.
	// Errors are reported but must not stop the control loop.
	PublishSample(s store.Sample) error

	// PublishSystem sends a lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (startup, shutdown, reconnect).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown only, e.g. "SIGTERM", "SENSOR_FAULT"
	RawPayload []byte // pre-formatted payload; returned as-is by FormatSystemPayload
	Retained   bool
}

// Payload is the sample message structure.
type Payload struct {
	Boiler BoilerPayload `json:"boiler"`
}

// BoilerPayload contains one cycle's values.
type BoilerPayload struct {
	Timestamp    string  `json:"timestamp"`
	Temperature  float64 `json:"temp"`
	Proportional float64 `json:"proportional"`
	Integral     float64 `json:"integral"`
	Derivative   float64 `json:"derivative"`
	DutyCycle    float64 `json:"duty_cycle"`
}

// FormatPayload creates the JSON payload for a sample.
func FormatPayload(s store.Sample) ([]byte, error) {
	return json.Marshal(Payload{
		Boiler: BoilerPayload{
			Timestamp:    s.Timestamp.UTC().Format(time.RFC3339Nano),
			Temperature:  s.Temperature,
			Proportional: s.Proportional,
			Integral:     s.Integral,
			Derivative:   s.Derivative,
			DutyCycle:    s.DutyCycle,
		},
	})
}

// SystemPayload is the payload for events that carry no status snapshot
// (the broker will message, RECONNECTED).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
