package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/kiln-control/internal/device"
)

// PWMMode classifies the actuator drive for one PWM period.
type PWMMode int

const (
	PWMOff PWMMode = iota
	PWMOn
	PWMCycling
)

// String returns the mode name for logs and telemetry.
func (m PWMMode) String() string {
	switch m {
	case PWMOff:
		return "OFF"
	case PWMOn:
		return "ON"
	case PWMCycling:
		return "CYCLING"
	}
	return "UNKNOWN"
}

// PWMState is the planned actuator behavior for one period. At power 0
// and 100 the actuator is pinned permanently off/on so the relay does
// not switch at the extremes.
type PWMState struct {
	Mode   PWMMode
	Duty   float64 // percent; only meaningful for PWMCycling
	Period time.Duration
}

// Plan converts a power command into a PWM state for the given period.
func Plan(power Power, period time.Duration) PWMState {
	switch {
	case power <= 0:
		return PWMState{Mode: PWMOff, Period: period}
	case power >= 100:
		return PWMState{Mode: PWMOn, Period: period}
	}
	return PWMState{Mode: PWMCycling, Duty: float64(power), Period: period}
}

// OnTime returns how long the actuator stays on within one period.
func (s PWMState) OnTime() time.Duration {
	switch s.Mode {
	case PWMOff:
		return 0
	case PWMOn:
		return s.Period
	}
	return time.Duration(float64(s.Period) * s.Duty / 100)
}

// Scheduler runs f once after d. The default driver uses time.AfterFunc;
// tests substitute a manual trigger so transition timing is exact.
type Scheduler func(d time.Duration, f func())

// PWMDriver turns PWM states into actuator transitions. Apply is called
// once per period, aligned to the tick boundary; the off transition
// inside a cycling period is scheduled through the Scheduler so each
// period sees exactly two transitions with no sub-period jitter source.
type PWMDriver struct {
	schedule Scheduler

	mu       sync.Mutex
	asyncErr error
}

// NewPWMDriver creates a driver. A nil scheduler uses time.AfterFunc.
func NewPWMDriver(schedule Scheduler) *PWMDriver {
	if schedule == nil {
		schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &PWMDriver{schedule: schedule}
}

// Apply drives the actuator for one period starting now. A synchronous
// write failure is returned directly; a failure from the scheduled off
// transition is latched and reported by Err at the next boundary. Either
// way the actuator state must be treated as unknown by the caller.
func (d *PWMDriver) Apply(state PWMState, act device.Actuator) error {
	switch state.Mode {
	case PWMOff:
		return act.SetOff()
	case PWMOn:
		return act.SetOn()
	}

	if err := act.SetOn(); err != nil {
		return err
	}
	d.schedule(state.OnTime(), func() {
		if err := act.SetOff(); err != nil {
			d.mu.Lock()
			if d.asyncErr == nil {
				d.asyncErr = fmt.Errorf("scheduled off transition: %w", err)
			}
			d.mu.Unlock()
		}
	})
	return nil
}

// Err returns an error latched from a scheduled transition, if any.
func (d *PWMDriver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asyncErr
}
