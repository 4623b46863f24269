// Package control contains the regulation core: the PID step, PWM
// planning, input smoothing, and the tick-driven control loop.
// The computational pieces have no clocks and no I/O; time always
// arrives as a parameter, which keeps them testable without hardware.
package control

import "math"

// Power is a heater power command as a percentage of full output.
// Values are always in [0,100]; construct through NewPower.
type Power float64

// NewPower clamps v into [0,100]. NaN maps to 0 so a numeric glitch can
// never command the actuator.
func NewPower(v float64) Power {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return Power(v)
}
