package mqtt

import (
	"log"
	"time"

	"github.com/sweeney/kiln-control/internal/control"
)

// Telemetry adapts the control loop's notifier callbacks onto a
// Publisher. Publish failures are logged, never propagated; telemetry
// must not destabilize the loop.
type Telemetry struct {
	pub Publisher
	now func() time.Time
}

// NewTelemetry creates a Telemetry forwarding to pub.
func NewTelemetry(pub Publisher) *Telemetry {
	return &Telemetry{pub: pub, now: time.Now}
}

// Reading publishes a per-tick reading.
func (t *Telemetry) Reading(r control.Reading) {
	if err := t.pub.PublishReading(r); err != nil {
		log.Printf("mqtt: publish reading: %v", err)
	}
}

// Lifecycle publishes loop state transitions. Faults and stops are
// retained so a late-joining observer sees the terminal state.
func (t *Telemetry) Lifecycle(state control.LoopState, reason string) {
	retained := state == control.StateFaulted || state == control.StateStopped
	event := SystemEvent{
		Timestamp: t.now(),
		Event:     string(state),
		Reason:    reason,
		Retained:  retained,
	}
	if err := t.pub.PublishSystem(event); err != nil {
		log.Printf("mqtt: publish lifecycle event: %v", err)
	}
}
