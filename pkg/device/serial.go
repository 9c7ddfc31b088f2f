package device

import (
	"fmt"
	"time"

	"github.com/itohio/gocharge/pkg/calib"
	"github.com/itohio/gocharge/pkg/config"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the Arduino sketch.
	DefaultBaudRate = 9600
	// DefaultReadTimeout bounds a single response line.
	DefaultReadTimeout = time.Second
)

// OpenSerial opens a serial port and configures its read timeout.
func OpenSerial(port string, baudRate int, readTimeout time.Duration) (serial.Port, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}

	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", port, err)
	}

	// Opening the port resets most Arduino boards; drop whatever the
	// bootloader printed before the sketch started.
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", port, err)
	}

	return p, nil
}

// OpenTransport opens the transport described by the configuration:
// the simulated charger when Serial.Mock is set, the serial port otherwise.
func OpenTransport(cfg *config.Config) (Transport, error) {
	if cfg.Serial.Mock {
		return NewMock(cfg), nil
	}
	return OpenSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.ReadTimeout)
}

// CalibrationFrom builds the conversion mappings from the configured
// reference measurements.
func CalibrationFrom(cfg *config.Config) (calib.Calibration, error) {
	c := cfg.Calibration
	in, err := calib.FromMeasurements(c.Measured5V, c.MeasuredGND, c.InputFullScale)
	if err != nil {
		return calib.Calibration{}, fmt.Errorf("input: %w", err)
	}
	out, err := calib.NewAffine(float64(c.OutputFullScale), 0)
	if err != nil {
		return calib.Calibration{}, fmt.Errorf("output: %w", err)
	}
	return calib.New(in, out)
}

// Open opens the configured transport and wraps it in a calibrated Channel.
func Open(cfg *config.Config) (*Channel, error) {
	cal, err := CalibrationFrom(cfg)
	if err != nil {
		return nil, err
	}
	t, err := OpenTransport(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := NewChannel(t, cal)
	if err != nil {
		t.Close()
		return nil, err
	}
	return ch, nil
}
