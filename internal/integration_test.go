package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/kiln-control/internal/control"
	"github.com/sweeney/kiln-control/internal/device"
	"github.com/sweeney/kiln-control/internal/mqtt"
	"github.com/sweeney/kiln-control/internal/status"
	"github.com/sweeney/kiln-control/internal/tuning"
)

// tickNotifier signals after each reading so the test can observe the
// other notifiers' state with a happens-before edge. It must be the
// last notifier in the list.
type tickNotifier struct {
	readings chan control.Reading
	events   chan control.LoopState
}

func newTickNotifier() *tickNotifier {
	return &tickNotifier{
		readings: make(chan control.Reading, 32),
		events:   make(chan control.LoopState, 32),
	}
}

func (n *tickNotifier) Reading(r control.Reading) { n.readings <- r }

func (n *tickNotifier) Lifecycle(state control.LoopState, reason string) { n.events <- state }

func (n *tickNotifier) next(t *testing.T) control.Reading {
	t.Helper()
	select {
	case r := <-n.readings:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reading")
		return control.Reading{}
	}
}

func writeTuning(t *testing.T, path string, kp, ki, kd float64, tuningMode bool) {
	t.Helper()
	body := fmt.Sprintf("kp: %g\nki: %g\nkd: %g\ntuning_mode: %v\n", kp, ki, kd, tuningMode)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}
}

// dropScheduler discards mid-period off transitions so the fakes are
// only touched from the loop goroutine.
func dropScheduler(time.Duration, func()) {}

func sampleAt(celsius float64, sec int) device.Sample {
	return device.Sample{
		Celsius: celsius,
		Time:    time.Date(2026, 1, 1, 12, 0, sec, 0, time.UTC),
	}
}

// TestIntegrationRegulatedFiring drives the full stack on fakes: sensor
// samples through smoothing and PID, telemetry out through the MQTT
// publisher, and state through the tracker.
func TestIntegrationRegulatedFiring(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	writeTuning(t, path, 1, 0, 0, false)

	params, err := tuning.Load(path)
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}

	sensor := device.NewFakeSensor([]device.Sample{
		sampleAt(50, 0),  // e=50 → 50%
		sampleAt(80, 1),  // e=20 → 20%
		sampleAt(120, 2), // e=-20 → clamped to 0
		sampleAt(90, 3),  // e=10 → 10%
	})
	actuator := device.NewFakeActuator()
	publisher := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{
		Mode:   "regulated",
		TickMs: 1000,
		Broker: "tcp://test:1883",
	})
	probe := newTickNotifier()

	loop := control.NewLoop(control.LoopConfig{
		Mode:      control.ModeRegulated,
		Tick:      time.Second,
		Setpoint:  100,
		Smoothing: 1,
	}, sensor, actuator, tuning.NewStore(path), params, control.NewPWMDriver(dropScheduler),
		tracker, mqtt.NewTelemetry(publisher), probe)

	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- loop.Run(tick) }()

	wantPower := []float64{50, 20, 0, 10}
	for i, want := range wantPower {
		tick <- time.Date(2026, 1, 1, 12, 0, i, 0, time.UTC)
		r := probe.next(t)
		if float64(r.Power) != want {
			t.Errorf("tick %d: power got %v, want %v", i, r.Power, want)
		}
	}

	close(tick)
	if err := <-done; err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	// MQTT saw every tick.
	if len(publisher.Readings) != 4 {
		t.Fatalf("expected 4 published readings, got %d", len(publisher.Readings))
	}
	var parsed mqtt.ReadingPayload
	if err := json.Unmarshal(publisher.ReadingPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid reading payload: %v", err)
	}
	if parsed.Kiln.TemperatureC != 50 {
		t.Errorf("payload temperature: got %v, want 50", parsed.Kiln.TemperatureC)
	}
	if parsed.Kiln.SetpointC != 100 {
		t.Errorf("payload setpoint: got %v, want 100", parsed.Kiln.SetpointC)
	}
	if parsed.Kiln.PowerPct != 50 {
		t.Errorf("payload power: got %v, want 50", parsed.Kiln.PowerPct)
	}
	if parsed.Kiln.State != "RUNNING" {
		t.Errorf("payload state: got %q, want RUNNING", parsed.Kiln.State)
	}

	// The tracker reflects the final state.
	snap := tracker.Snapshot()
	if snap.State != control.StateStopped {
		t.Errorf("tracker state: got %s, want STOPPED", snap.State)
	}
	if snap.Ticks != 4 {
		t.Errorf("tracker ticks: got %d, want 4", snap.Ticks)
	}
	if snap.Sample.Celsius != 90 {
		t.Errorf("tracker last sample: got %v, want 90", snap.Sample.Celsius)
	}

	// A retained STOPPED event went out, and the element is off.
	last := publisher.SystemEvents[len(publisher.SystemEvents)-1]
	if last.Event != "STOPPED" || !last.Retained {
		t.Errorf("final system event: got %+v, want retained STOPPED", last)
	}
	if actuator.On {
		t.Error("element still on after shutdown")
	}
}

// TestIntegrationLiveTuningReload edits the tuning file mid-run and
// verifies the new gains take effect at the next tick.
func TestIntegrationLiveTuningReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	writeTuning(t, path, 1, 0, 0, true)

	params, err := tuning.Load(path)
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}

	sensor := device.NewFakeSensor([]device.Sample{sampleAt(90, 0)})
	actuator := device.NewFakeActuator()
	probe := newTickNotifier()

	loop := control.NewLoop(control.LoopConfig{
		Mode:     control.ModeRegulated,
		Tick:     time.Second,
		Setpoint: 100,
	}, sensor, actuator, tuning.NewStore(path), params, control.NewPWMDriver(dropScheduler), probe)

	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- loop.Run(tick) }()

	tick <- time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := probe.next(t)
	if float64(r.Power) != 10 {
		t.Fatalf("power before reload: got %v, want 10", r.Power)
	}

	writeTuning(t, path, 3, 0, 0, true)

	tick <- time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)
	r = probe.next(t)
	if r.Params.Kp != 3 {
		t.Errorf("kp after reload: got %v, want 3", r.Params.Kp)
	}
	if float64(r.Power) != 30 {
		t.Errorf("power after reload: got %v, want 30", r.Power)
	}

	close(tick)
	if err := <-done; err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
}

// TestIntegrationSensorFaultFailsSafe verifies a thermocouple fault
// mid-firing kills power and publishes a retained FAULTED event.
func TestIntegrationSensorFaultFailsSafe(t *testing.T) {
	sensor := device.NewFakeSensor([]device.Sample{
		sampleAt(500, 0),
		sampleAt(510, 1),
	})
	sensor.ReadErrs = []error{nil, nil, device.ErrOpenCircuit}
	actuator := device.NewFakeActuator()
	publisher := mqtt.NewFakePublisher()
	probe := newTickNotifier()

	loop := control.NewLoop(control.LoopConfig{
		Mode:     control.ModeRegulated,
		Tick:     time.Second,
		Setpoint: 600,
	}, sensor, actuator, nil, tuning.Parameters{Kp: 1}, control.NewPWMDriver(dropScheduler),
		mqtt.NewTelemetry(publisher), probe)

	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- loop.Run(tick) }()

	tick <- time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	probe.next(t)
	tick <- time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)
	probe.next(t)

	// Third tick hits the open-circuit fault.
	tick <- time.Date(2026, 1, 1, 12, 0, 2, 0, time.UTC)
	err := <-done
	if !errors.Is(err, device.ErrOpenCircuit) {
		t.Fatalf("loop error: got %v, want ErrOpenCircuit", err)
	}

	if actuator.On {
		t.Error("element still on after fault")
	}
	if state, _ := loop.State(); state != control.StateFaulted {
		t.Errorf("loop state: got %s, want FAULTED", state)
	}

	last := publisher.SystemEvents[len(publisher.SystemEvents)-1]
	if last.Event != "FAULTED" || !last.Retained {
		t.Errorf("final system event: got %+v, want retained FAULTED", last)
	}
	if last.Reason == "" {
		t.Error("FAULTED event missing reason")
	}

	// Only the two good ticks produced readings.
	if len(publisher.Readings) != 2 {
		t.Errorf("expected 2 published readings, got %d", len(publisher.Readings))
	}
}

// TestIntegrationMQTTCommandPath verifies the loop satisfies the MQTT
// command sink and that a setpoint command lands at a tick boundary.
func TestIntegrationMQTTCommandPath(t *testing.T) {
	var sink mqtt.CommandSink

	sensor := device.NewFakeSensor([]device.Sample{sampleAt(50, 0)})
	actuator := device.NewFakeActuator()
	probe := newTickNotifier()

	loop := control.NewLoop(control.LoopConfig{
		Mode:     control.ModeRegulated,
		Tick:     time.Second,
		Setpoint: 100,
	}, sensor, actuator, nil, tuning.Parameters{Kp: 1}, control.NewPWMDriver(dropScheduler), probe)
	sink = loop

	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- loop.Run(tick) }()

	tick <- time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := probe.next(t)
	if r.Setpoint != 100 {
		t.Fatalf("initial setpoint: got %v, want 100", r.Setpoint)
	}

	sink.SetSetpoint(150)
	tick <- time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)
	r = probe.next(t)
	if r.Setpoint != 150 {
		t.Errorf("setpoint after command: got %v, want 150", r.Setpoint)
	}
	if float64(r.Power) != 100 {
		t.Errorf("power after command: got %v, want 100", r.Power)
	}

	sink.RequestShutdown()
	tick <- time.Date(2026, 1, 1, 12, 0, 2, 0, time.UTC)
	if err := <-done; err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
	if state, _ := loop.State(); state != control.StateStopped {
		t.Errorf("loop state: got %s, want STOPPED", state)
	}
}
