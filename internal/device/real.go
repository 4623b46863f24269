//go:build linux

package device

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// RelayActuator drives a solid state relay through a GPIO output line
// using the Linux GPIO character device.
type RelayActuator struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRelayActuator requests the relay pin as an output, initially off.
func NewRelayActuator(pin int) (*RelayActuator, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	return &RelayActuator{chip: chip, line: line}, nil
}

// SetOn closes the relay.
func (r *RelayActuator) SetOn() error {
	if err := r.line.SetValue(1); err != nil {
		return fmt.Errorf("set relay on: %w", err)
	}
	return nil
}

// SetOff opens the relay.
func (r *RelayActuator) SetOff() error {
	if err := r.line.SetValue(0); err != nil {
		return fmt.Errorf("set relay off: %w", err)
	}
	return nil
}

// Close forces the relay open before releasing the line so the heater is
// never left powered across a restart.
func (r *RelayActuator) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("force relay off: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// ThermocoupleSensor reads a MAX31855 thermocouple frontend over SPI.
type ThermocoupleSensor struct {
	port spi.PortCloser
	conn spi.Conn
}

// NewThermocoupleSensor opens the SPI device and configures it for the
// MAX31855 (mode 0, 8-bit words, 5 MHz max).
func NewThermocoupleSensor(dev string) (*ThermocoupleSensor, error) {
	if _, err := driverreg.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}

	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", dev, err)
	}

	conn, err := port.Connect(5*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("configure spi: %w", err)
	}

	return &ThermocoupleSensor{port: port, conn: conn}, nil
}

// Read clocks one 32-bit frame out of the converter and decodes it.
func (t *ThermocoupleSensor) Read() (Sample, error) {
	buf := make([]byte, 4)
	if err := t.conn.Tx(nil, buf); err != nil {
		return Sample{}, fmt.Errorf("spi read: %w", err)
	}

	celsius, err := decodeMAX31855(binary.BigEndian.Uint32(buf))
	if err != nil {
		return Sample{}, fmt.Errorf("probe fault: %w", err)
	}

	return Sample{Celsius: celsius, Time: time.Now()}, nil
}

// Close releases the SPI port.
func (t *ThermocoupleSensor) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}
