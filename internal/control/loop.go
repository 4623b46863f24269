package control

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/sweeney/kiln-control/internal/device"
	"github.com/sweeney/kiln-control/internal/tuning"
)

// LoopState is the lifecycle state of the control loop.
type LoopState string

const (
	StateIdle    LoopState = "IDLE"
	StateRunning LoopState = "RUNNING"
	StateFaulted LoopState = "FAULTED"
	StateStopped LoopState = "STOPPED"
)

// Mode selects how the power command is produced each tick.
type Mode string

const (
	// ModeRegulated runs the PID toward the current setpoint.
	ModeRegulated Mode = "regulated"
	// ModeUnregulated passes the directly-set power through.
	ModeUnregulated Mode = "unregulated"
)

// MaxSetpoint bounds the setpoint in degrees Celsius.
const MaxSetpoint = 1500.0

// Reading is the per-tick output handed to observers.
type Reading struct {
	Sample   device.Sample
	Power    Power
	Setpoint float64
	State    LoopState
	Params   tuning.Parameters
}

// Notifier receives per-tick readings and lifecycle transitions. Calls
// happen on the loop goroutine and must not block on UI or network I/O;
// the status tracker is a mutex write and the MQTT publisher buffers.
type Notifier interface {
	Reading(r Reading)
	Lifecycle(state LoopState, reason string)
}

type commandKind int

const (
	cmdSetpoint commandKind = iota
	cmdPower
	cmdShutdown
)

type command struct {
	kind  commandKind
	value float64
}

const commandBacklog = 16

// LoopConfig carries the loop's fixed configuration.
type LoopConfig struct {
	Mode      Mode
	Tick      time.Duration // sensor/PID period; also the PWM period
	Setpoint  float64       // initial setpoint (regulated mode)
	Power     float64       // initial power (unregulated mode)
	Smoothing int           // moving-average window ahead of the PID
}

// Loop orchestrates sensing, regulation, and actuation on a fixed tick.
// It is the sole writer of the latest sample/power pair and the sole
// consumer of inbound commands; observers read snapshots.
type Loop struct {
	cfg       LoopConfig
	sensor    device.Sensor
	actuator  device.Actuator
	store     *tuning.Store
	driver    *PWMDriver
	notifiers []Notifier

	cmds chan command

	// Working state, owned by the Run goroutine.
	params      tuning.Parameters
	setpoint    float64
	directPower Power
	pid         PIDState
	smoother    *MovingAverage
	prevTick    time.Time

	// Observable state.
	mu          sync.RWMutex
	state       LoopState
	reason      string
	latest      device.Sample
	latestPower Power
}

// NewLoop wires a loop in the Idle state. params must come from a
// successful tuning.Load; store may be nil when live reload is not
// wanted (tuning then stays fixed for the loop's lifetime).
func NewLoop(cfg LoopConfig, sensor device.Sensor, actuator device.Actuator, store *tuning.Store, params tuning.Parameters, driver *PWMDriver, notifiers ...Notifier) *Loop {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Loop{
		cfg:         cfg,
		sensor:      sensor,
		actuator:    actuator,
		store:       store,
		driver:      driver,
		notifiers:   notifiers,
		cmds:        make(chan command, commandBacklog),
		params:      params,
		setpoint:    clampSetpoint(cfg.Setpoint),
		directPower: NewPower(cfg.Power),
		smoother:    NewMovingAverage(cfg.Smoothing),
		state:       StateIdle,
	}
}

// State returns the loop state and, when Faulted or Stopped, the reason.
func (l *Loop) State() (LoopState, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, l.reason
}

// LatestSample returns the most recent temperature sample.
func (l *Loop) LatestSample() device.Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

// LatestPower returns the most recent power command.
func (l *Loop) LatestPower() Power {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latestPower
}

// SetSetpoint requests a new target temperature (regulated mode). The
// change takes effect at the next tick boundary.
func (l *Loop) SetSetpoint(v float64) {
	l.send(command{kind: cmdSetpoint, value: v})
}

// SetPowerDirect requests a new direct power level (unregulated mode).
func (l *Loop) SetPowerDirect(v float64) {
	l.send(command{kind: cmdPower, value: v})
}

// RequestShutdown asks the loop to stop at the next tick boundary. The
// actuator is always switched off before the loop exits.
func (l *Loop) RequestShutdown() {
	l.send(command{kind: cmdShutdown})
}

func (l *Loop) send(c command) {
	select {
	case l.cmds <- c:
	default:
		log.Printf("control: command backlog full, dropping command")
	}
}

// Run executes the loop until shutdown or fault, consuming tick times
// from tick. It returns nil on clean shutdown and the triggering error
// after a fault. Closing the tick source is treated as a shutdown
// request.
func (l *Loop) Run(tick <-chan time.Time) error {
	l.transition(StateRunning, "")

	for t := range tick {
		done, err := l.step(t)
		if done {
			return err
		}
	}

	l.stop("tick source closed")
	return nil
}

// step performs one control cycle at tick time t.
func (l *Loop) step(t time.Time) (done bool, err error) {
	if l.drainCommands() {
		l.stop("shutdown requested")
		return true, nil
	}

	// An off transition scheduled in the previous period may have failed
	// mid-period; the actuator state is then unknown.
	if derr := l.driver.Err(); derr != nil {
		return true, l.fault(fmt.Errorf("actuator: %w", derr))
	}

	sample, rerr := l.sensor.Read()
	if rerr != nil {
		return true, l.fault(fmt.Errorf("sensor: %w", rerr))
	}
	if math.IsNaN(sample.Celsius) {
		return true, l.fault(fmt.Errorf("sensor: reading is NaN"))
	}

	var dt float64
	if !l.prevTick.IsZero() {
		dt = t.Sub(l.prevTick).Seconds()
	}
	l.prevTick = t

	// Tuning reloads happen here and nowhere else, so parameters are
	// stable for the remainder of the tick.
	if l.store != nil {
		l.params = l.store.MaybeReload(l.params)
	}

	var power Power
	if l.cfg.Mode == ModeUnregulated {
		power = l.directPower
	} else {
		smoothed := l.smoother.Add(sample.Celsius)
		power, l.pid = PIDUpdate(l.setpoint, smoothed, dt, l.params, l.pid)
	}

	if aerr := l.driver.Apply(Plan(power, l.cfg.Tick), l.actuator); aerr != nil {
		return true, l.fault(fmt.Errorf("actuator: %w", aerr))
	}

	l.publish(sample, power)
	return false, nil
}

// drainCommands applies all pending commands. Returns true on shutdown.
func (l *Loop) drainCommands() (shutdown bool) {
	for {
		select {
		case c := <-l.cmds:
			switch c.kind {
			case cmdShutdown:
				return true
			case cmdSetpoint:
				l.setpoint = clampSetpoint(c.value)
			case cmdPower:
				l.directPower = NewPower(c.value)
			}
		default:
			return false
		}
	}
}

func (l *Loop) publish(sample device.Sample, power Power) {
	l.mu.Lock()
	l.latest = sample
	l.latestPower = power
	state := l.state
	l.mu.Unlock()

	r := Reading{
		Sample:   sample,
		Power:    power,
		Setpoint: l.setpoint,
		State:    state,
		Params:   l.params,
	}
	for _, n := range l.notifiers {
		n.Reading(r)
	}
}

// fault forces the actuator off (best effort, its state may already be
// unknown), records the fault, and halts the loop. There is no automatic
// recovery; the operator must restart.
func (l *Loop) fault(err error) error {
	log.Printf("control: fault: %v", err)
	if offErr := l.actuator.SetOff(); offErr != nil {
		log.Printf("control: best-effort off after fault failed: %v", offErr)
	}
	l.transition(StateFaulted, err.Error())
	return err
}

// stop performs the mandatory actuator-off and records a clean stop.
func (l *Loop) stop(reason string) {
	if err := l.actuator.SetOff(); err != nil {
		log.Printf("control: off on shutdown failed: %v", err)
	}
	l.transition(StateStopped, reason)
}

func (l *Loop) transition(state LoopState, reason string) {
	l.mu.Lock()
	l.state = state
	l.reason = reason
	l.mu.Unlock()

	if reason != "" {
		log.Printf("control: %s (%s)", state, reason)
	} else {
		log.Printf("control: %s", state)
	}
	for _, n := range l.notifiers {
		n.Lifecycle(state, reason)
	}
}

func clampSetpoint(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > MaxSetpoint {
		return MaxSetpoint
	}
	return v
}
