package control

import "github.com/sweeney/kiln-control/internal/tuning"

// PIDState is the controller memory carried between ticks. The zero
// value is a fresh, unprimed controller.
type PIDState struct {
	// Integral is the accumulated error multiplied by elapsed time.
	Integral float64
	// PrevErr is the error from the previous update.
	PrevErr float64
	// PrevSetpoint detects discontinuous setpoint changes.
	PrevSetpoint float64
	// Primed is false until the first update has run; the derivative
	// term is skipped while unprimed.
	Primed bool
}

// PIDUpdate advances the controller by one tick and returns the power
// command plus the state to carry into the next tick. dt is elapsed time
// in seconds; when dt <= 0 the derivative term is skipped.
//
// A discontinuous setpoint change discards the accumulated state so the
// integral and derivative terms cannot spike across the step. When the
// raw output saturates beyond [0,100] in the direction of the error, the
// integral is not accumulated that tick (clamp-and-hold anti-windup).
func PIDUpdate(setpoint, measured, dt float64, params tuning.Parameters, state PIDState) (Power, PIDState) {
	if state.Primed && setpoint != state.PrevSetpoint {
		state = PIDState{}
	}

	e := setpoint - measured
	integral := state.Integral + e*dt

	var derivative float64
	if state.Primed && dt > 0 {
		derivative = (e - state.PrevErr) / dt
	}

	raw := params.Kp*e + params.Ki*integral + params.Kd*derivative
	if (raw > 100 && e > 0) || (raw < 0 && e < 0) {
		// Saturated in the error's direction: the output still clamps to
		// the limit, but the accumulation is discarded so the integral
		// cannot run away during prolonged saturation.
		integral = state.Integral
	}

	next := PIDState{
		Integral:     integral,
		PrevErr:      e,
		PrevSetpoint: setpoint,
		Primed:       true,
	}
	return NewPower(raw), next
}
