package sample

import (
	"log"
	"time"
)

// NewAveragingConverter creates a converter that smooths Samples with a moving
// average over the last windowSize samples. One averaged sample is emitted per
// input sample, so the output rate matches the input rate.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			buffer := make([]Sample, 0, windowSize)
			for s := range in {
				buffer = append(buffer, s)
				if len(buffer) > windowSize {
					buffer = buffer[1:] // Remove oldest
				}

				select {
				case out <- averageSamples(buffer):
				case <-time.After(time.Second):
					log.Printf("sample: averaging converter output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}

// averageSamples averages a slice of Samples.
// Uses the most recent sample's timestamp, cycle, state and ended flag.
// Resistance is derived from the averaged voltage and current.
func averageSamples(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	var sumCurrent, sumVoltage, sumOutput float64
	last := samples[len(samples)-1]

	for _, s := range samples {
		sumCurrent += s.Current
		sumVoltage += s.Voltage
		sumOutput += s.Output
	}

	n := float64(len(samples))
	avg := last
	avg.Current = sumCurrent / n
	avg.Voltage = sumVoltage / n
	avg.Output = sumOutput / n
	avg.Resistance = loadResistance(avg.Voltage, avg.Current)
	return avg
}
