package calib

import (
	"errors"
	"fmt"
	"math"
)

const (
	// FullScaleVolts is the reference voltage of the device (5V rail).
	FullScaleVolts = 5.0

	// DefaultInputFullScale is the full scale code of the 10-bit ADC.
	DefaultInputFullScale = 1023
	// DefaultOutputFullScale is the full scale code of the 8-bit PWM output.
	DefaultOutputFullScale = 255
)

var (
	// ErrCalibration is returned when the calibration endpoints are degenerate.
	ErrCalibration = errors.New("calibration endpoints are equal")
	// ErrOutOfRange is matched by RangeError.
	ErrOutOfRange = errors.New("value out of range")
)

// RangeError reports an analog value outside [0, FullScaleVolts] that was clamped.
type RangeError struct {
	Volts float64
	Code  int // Clamped code that was returned
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%.4fV out of range [0, %.1f], clamped to %d", e.Volts, FullScaleVolts, e.Code)
}

// Is makes errors.Is(err, ErrOutOfRange) work.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// Affine maps digital codes to volts using the codes observed at 5V and at 0V.
type Affine struct {
	At5V float64 // Digital code at FullScaleVolts
	At0V float64 // Digital code at 0V
}

// NewAffine creates a mapping from two endpoints.
func NewAffine(at5V, at0V float64) (Affine, error) {
	a := Affine{At5V: at5V, At0V: at0V}
	if err := a.Validate(); err != nil {
		return Affine{}, err
	}
	return a, nil
}

// Validate fails when the endpoints are equal (or not finite).
func (a Affine) Validate() error {
	if a.At5V == a.At0V {
		return fmt.Errorf("%w: both are %g", ErrCalibration, a.At5V)
	}
	if math.IsNaN(a.At5V) || math.IsNaN(a.At0V) || math.IsInf(a.At5V, 0) || math.IsInf(a.At0V, 0) {
		return fmt.Errorf("%w: endpoints must be finite", ErrCalibration)
	}
	return nil
}

// ToAnalog converts a digital code to volts.
func (a Affine) ToAnalog(code int) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	return (float64(code) - a.At0V) * FullScaleVolts / (a.At5V - a.At0V), nil
}

// ToDigital converts volts to the nearest digital code.
// Values outside [0, FullScaleVolts] are clamped to the corresponding endpoint
// code and returned together with a *RangeError.
func (a Affine) ToDigital(volts float64) (int, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}

	switch {
	case volts > FullScaleVolts:
		code := int(math.Round(a.At5V))
		return code, &RangeError{Volts: volts, Code: code}
	case volts < 0 || math.IsNaN(volts):
		code := int(math.Round(a.At0V))
		return code, &RangeError{Volts: volts, Code: code}
	}

	return int(math.Round(a.At0V + volts*(a.At5V-a.At0V)/FullScaleVolts)), nil
}

// Calibration holds the input (ADC) and output (PWM) mappings of a device.
// It is created once per job and never mutated.
type Calibration struct {
	Input  Affine
	Output Affine
}

// Default returns the nominal calibration: a 10-bit ADC and an 8-bit output,
// both referenced to an exact 5V rail.
func Default() Calibration {
	return Calibration{
		Input:  Affine{At5V: DefaultInputFullScale, At0V: 0},
		Output: Affine{At5V: DefaultOutputFullScale, At0V: 0},
	}
}

// New validates both mappings.
func New(input, output Affine) (Calibration, error) {
	if err := input.Validate(); err != nil {
		return Calibration{}, fmt.Errorf("input: %w", err)
	}
	if err := output.Validate(); err != nil {
		return Calibration{}, fmt.Errorf("output: %w", err)
	}
	return Calibration{Input: input, Output: output}, nil
}

// FromMeasurements derives the ADC mapping from the voltages measured with a
// multimeter on the 5V rail and on GND. The ADC reference is the rail itself,
// so a rail measured at 4.7V means full scale corresponds to 4.7V.
func FromMeasurements(measured5V, measuredGND float64, fullScale int) (Affine, error) {
	if measured5V == measuredGND {
		return Affine{}, fmt.Errorf("%w: 5V and GND measured as %gV", ErrCalibration, measured5V)
	}
	span := measured5V - measuredGND
	return NewAffine(
		float64(fullScale)*(FullScaleVolts-measuredGND)/span,
		-float64(fullScale)*measuredGND/span,
	)
}
