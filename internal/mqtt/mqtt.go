// Package mqtt provides controller telemetry publishing and inbound
// command handling, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/kiln-control/internal/control"
)

// Topics for outbound telemetry.
const (
	// TopicReadings carries one message per control tick.
	TopicReadings = "kiln/controller/readings"
	// TopicSystem carries lifecycle events (startup, shutdown, fault).
	TopicSystem = "kiln/controller/system"
)

// Topics for inbound commands.
const (
	TopicCmdSetpoint = "kiln/controller/cmd/setpoint"
	TopicCmdPower    = "kiln/controller/cmd/power"
	TopicCmdShutdown = "kiln/controller/cmd/shutdown"
)

// Publisher publishes controller telemetry.
type Publisher interface {
	// PublishReading sends one per-tick reading to the broker.
	// Returns error if publishing fails (must not crash the process).
	PublishReading(r control.Reading) error

	// PublishSystem sends a lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandSink receives inbound control commands. The control loop
// satisfies this interface.
type CommandSink interface {
	SetSetpoint(v float64)
	SetPowerDirect(v float64)
	RequestShutdown()
}

// SystemEvent represents a controller lifecycle event.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "FAULTED"
	Reason     string // e.g., the fault description
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ReadingPayload is the MQTT message payload for a per-tick reading.
type ReadingPayload struct {
	Kiln ReadingInner `json:"kiln"`
}

// ReadingInner contains the reading details.
type ReadingInner struct {
	Timestamp    string  `json:"timestamp"`
	TemperatureC float64 `json:"temperature_c"`
	SetpointC    float64 `json:"setpoint_c"`
	PowerPct     float64 `json:"power_pct"`
	State        string  `json:"state"`
	Kp           float64 `json:"kp"`
	Ki           float64 `json:"ki"`
	Kd           float64 `json:"kd"`
}

// FormatReadingPayload creates the JSON payload for a reading.
func FormatReadingPayload(r control.Reading) ([]byte, error) {
	payload := ReadingPayload{
		Kiln: ReadingInner{
			Timestamp:    r.Sample.Time.UTC().Format(time.RFC3339),
			TemperatureC: r.Sample.Celsius,
			SetpointC:    r.Setpoint,
			PowerPct:     float64(r.Power),
			State:        string(r.State),
			Kp:           r.Params.Kp,
			Ki:           r.Params.Ki,
			Kd:           r.Params.Kd,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message payload for simple system events
// that don't carry a full status snapshot.
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
// If event.RawPayload is set, it is returned directly (used for full
// status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
