//go:build !linux

package device

import "errors"

var errUnsupported = errors.New("device: not supported on this platform (requires Linux)")

// RelayActuator is not available on non-Linux platforms.
type RelayActuator struct{}

// NewRelayActuator returns an error on non-Linux platforms.
func NewRelayActuator(pin int) (*RelayActuator, error) {
	return nil, errUnsupported
}

// SetOn is not implemented on non-Linux platforms.
func (r *RelayActuator) SetOn() error { return errUnsupported }

// SetOff is not implemented on non-Linux platforms.
func (r *RelayActuator) SetOff() error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *RelayActuator) Close() error { return nil }

// ThermocoupleSensor is not available on non-Linux platforms.
type ThermocoupleSensor struct{}

// NewThermocoupleSensor returns an error on non-Linux platforms.
func NewThermocoupleSensor(dev string) (*ThermocoupleSensor, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (t *ThermocoupleSensor) Read() (Sample, error) {
	return Sample{}, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (t *ThermocoupleSensor) Close() error { return nil }
