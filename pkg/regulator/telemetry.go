package regulator

import "time"

// Telemetry is the snapshot published by the loop once per cycle.
// It is never modified after publication.
type Telemetry struct {
	Cycle         uint64    // Cycle counter, starts at 1
	Timestamp     time.Time // When the cycle sampled its inputs
	SenseVoltage  float64   // Voltage across the sense resistor (V)
	LoadVoltage   float64   // Voltage across the load (V)
	OutputCode    int       // Digital code of OutputVoltage
	OutputVoltage float64   // Output drive (V)
	Step          float64   // Magnitude of the last correction (V)
	State         State     // Loop state during the cycle
	Ended         bool      // Job-ended flag as of this cycle
}

// CurrentMilliamps returns the load current derived from the sense voltage.
func (t Telemetry) CurrentMilliamps(senseResistorOhms float64) float64 {
	if senseResistorOhms == 0 {
		return 0
	}
	return 1000 * t.SenseVoltage / senseResistorOhms
}
