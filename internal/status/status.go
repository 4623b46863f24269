// Package status provides a thread-safe status tracker for the
// kiln-control daemon. The control loop is its sole writer; HTTP
// handlers and telemetry consumers read point-in-time snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/kiln-control/internal/control"
	"github.com/sweeney/kiln-control/internal/device"
	"github.com/sweeney/kiln-control/internal/tuning"
)

// Config contains daemon configuration for display.
type Config struct {
	Mode       string
	TickMs     int64
	Smoothing  int
	Broker     string
	HTTPAddr   string
	TuningPath string
	RelayPin   int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         control.LoopState
	Reason        string
	Sample        device.Sample
	Power         control.Power
	Setpoint      float64
	Params        tuning.Parameters
	Ticks         int64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// control.Notifier so the loop can feed it directly.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     control.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Reading records the loop's per-tick output.
func (t *Tracker) Reading(r control.Reading) {
	t.mu.Lock()
	t.snap.Sample = r.Sample
	t.snap.Power = r.Power
	t.snap.Setpoint = r.Setpoint
	t.snap.State = r.State
	t.snap.Params = r.Params
	t.snap.Ticks++
	t.mu.Unlock()
}

// Lifecycle records a loop state transition. The last known sample is
// deliberately kept so a faulted display still shows it.
func (t *Tracker) Lifecycle(state control.LoopState, reason string) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Reason = reason
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
