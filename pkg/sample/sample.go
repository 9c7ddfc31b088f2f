package sample

import (
	"log"
	"time"

	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/regulator"
)

// Sample represents a processed measurement sample with physical values.
type Sample struct {
	Timestamp  time.Time
	Cycle      uint64          // Regulation cycle the sample was taken in
	Current    float64         // Load current (mA)
	Voltage    float64         // Load voltage (V)
	Resistance float64         // Load resistance (Ohm), -1 when no current flows
	Output     float64         // Output drive (V)
	State      regulator.State // Loop state
	Ended      bool            // Job-ended flag
}

// Converter is a function type that converts a Telemetry channel to a Sample channel.
type Converter func(in <-chan regulator.Telemetry) <-chan Sample

// NewConverter creates a converter function that transforms Telemetry to Sample.
func NewConverter(cfg *config.Config, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	senseOhms := cfg.Job.SenseResistorOhms
	lvConst := cfg.Recorder.LVConst

	return func(in <-chan regulator.Telemetry) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			for t := range in {
				select {
				case out <- FromTelemetry(t, senseOhms, lvConst):
				case <-time.After(time.Second):
					log.Printf("sample: converter output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}

// FromTelemetry derives the load quantities from a telemetry snapshot.
// lvConst is added to the measured load voltage to account for the drop the
// load probe does not see.
func FromTelemetry(t regulator.Telemetry, senseOhms, lvConst float64) Sample {
	current := t.CurrentMilliamps(senseOhms)
	voltage := t.LoadVoltage + lvConst

	return Sample{
		Timestamp:  t.Timestamp,
		Cycle:      t.Cycle,
		Current:    current,
		Voltage:    voltage,
		Resistance: loadResistance(voltage, current),
		Output:     t.OutputVoltage,
		State:      t.State,
		Ended:      t.Ended,
	}
}

// loadResistance returns R = V / I in Ohm for a current in mA.
func loadResistance(volts, milliamps float64) float64 {
	if milliamps == 0 {
		return -1
	}
	return 1000 * volts / milliamps
}
