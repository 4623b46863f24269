// Package device provides the temperature probe and heater relay
// capabilities with hardware abstraction.
// The real implementations use an SPI thermocouple frontend and a GPIO
// solid state relay on Linux.
// The fake implementations allow testing without hardware.
package device

import (
	"errors"
	"time"
)

// Sample is a single temperature reading. Immutable once produced.
type Sample struct {
	Celsius float64
	Time    time.Time
}

// Sensor yields temperature samples.
type Sensor interface {
	// Read returns the current probe temperature. A probe fault is
	// reported as an error wrapping one of the sentinel errors below so
	// callers can classify it with errors.Is.
	Read() (Sample, error)

	// Close releases probe resources.
	Close() error
}

// Actuator switches the heater supply on and off. Both calls are
// idempotent: repeating the current state is not an error.
type Actuator interface {
	SetOn() error
	SetOff() error

	// Close forces the heater off and releases resources.
	Close() error
}

// Probe and bus fault classification.
var (
	ErrOpenCircuit  = errors.New("thermocouple open circuit")
	ErrShortToGND   = errors.New("thermocouple shorted to GND")
	ErrShortToVCC   = errors.New("thermocouple shorted to VCC")
	ErrDisconnected = errors.New("probe disconnected")
	ErrTimeout      = errors.New("device i/o timeout")
)

// Default wiring (BCM numbering for the relay pin, first SPI bus for the
// thermocouple).
const (
	DefaultRelayPin = 17
	DefaultSPIDev   = "/dev/spidev0.0"
)
