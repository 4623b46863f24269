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
	State         string      `json:"state"`
	FaultReason   string      `json:"fault_reason,omitempty"`
	TemperatureC  *float64    `json:"temperature_c,omitempty"`
	SampleTime    string      `json:"sample_time,omitempty"`
	SetpointC     float64     `json:"setpoint_c"`
	PowerPct      float64     `json:"power_pct"`
	Ticks         int64       `json:"ticks"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Tuning        TuningJSON  `json:"tuning"`
	Config        ConfigJSON  `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// TuningJSON is the JSON representation of the active PID parameters.
type TuningJSON struct {
	Kp         float64 `json:"kp"`
	Ki         float64 `json:"ki"`
	Kd         float64 `json:"kd"`
	TuningMode bool    `json:"tuning_mode"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Mode       string `json:"mode"`
	TickMs     int64  `json:"tick_ms"`
	Smoothing  int    `json:"smoothing"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
	TuningPath string `json:"tuning_path"`
	RelayPin   int    `json:"relay_pin"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:         string(snap.State),
		FaultReason:   snap.Reason,
		SetpointC:     snap.Setpoint,
		PowerPct:      float64(snap.Power),
		Ticks:         snap.Ticks,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Tuning: TuningJSON{
			Kp:         snap.Params.Kp,
			Ki:         snap.Params.Ki,
			Kd:         snap.Params.Kd,
			TuningMode: snap.Params.TuningMode,
		},
		Config: ConfigJSON{
			Mode:       snap.Config.Mode,
			TickMs:     snap.Config.TickMs,
			Smoothing:  snap.Config.Smoothing,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
			TuningPath: snap.Config.TuningPath,
			RelayPin:   snap.Config.RelayPin,
		},
	}

	// No sample before the first tick; omit rather than report 0 degC.
	if !snap.Sample.Time.IsZero() {
		temp := snap.Sample.Celsius
		inner.TemperatureC = &temp
		inner.SampleTime = snap.Sample.Time.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
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
