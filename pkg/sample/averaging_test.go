package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, out <-chan Sample) []Sample {
	t.Helper()
	var samples []Sample
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-out:
			if !ok {
				return samples
			}
			samples = append(samples, s)
		case <-timeout:
			t.Fatal("output channel did not close within timeout")
			return nil
		}
	}
}

func TestNewAveragingConverter_MovingAverage(t *testing.T) {
	in := make(chan Sample, 10)
	out := NewAveragingConverter(3, 10)(in)

	now := time.Now()
	for i := range 5 {
		in <- Sample{
			Timestamp: now.Add(time.Duration(i) * time.Millisecond),
			Cycle:     uint64(i + 1),
			Current:   float64(10 * (i + 1)),
			Voltage:   1.0,
			Output:    float64(i),
			Ended:     i == 4,
		}
	}
	close(in)

	samples := collect(t, out)
	require.Len(t, samples, 5)

	// One output per input, averaged over up to three samples
	wantCurrent := []float64{10, 15, 20, 30, 40}
	for i, s := range samples {
		assert.InDelta(t, wantCurrent[i], s.Current, 1e-9, "sample %d", i)
		assert.InDelta(t, 1.0, s.Voltage, 1e-9)
		assert.InDelta(t, 1000*s.Voltage/s.Current, s.Resistance, 1e-9)
		assert.Equal(t, uint64(i+1), s.Cycle)
	}
	assert.InDelta(t, 3.0, samples[4].Output, 1e-9)
	assert.True(t, samples[4].Ended)
	assert.Equal(t, now.Add(4*time.Millisecond), samples[4].Timestamp)
}

func TestNewAveragingConverter_InvalidWindowSize(t *testing.T) {
	in := make(chan Sample, 2)
	out := NewAveragingConverter(0, 0)(in)

	in <- Sample{Current: 10, Voltage: 1}
	in <- Sample{Current: 20, Voltage: 1}
	close(in)

	samples := collect(t, out)
	require.Len(t, samples, 2)
	// Window of one passes samples through
	assert.Equal(t, 10.0, samples[0].Current)
	assert.Equal(t, 20.0, samples[1].Current)
}

func TestAverageSamples(t *testing.T) {
	assert.Equal(t, Sample{}, averageSamples(nil))

	avg := averageSamples([]Sample{
		{Current: 0, Voltage: 1.0},
		{Current: 0, Voltage: 1.2},
	})
	assert.InDelta(t, 1.1, avg.Voltage, 1e-9)
	assert.Equal(t, -1.0, avg.Resistance)
}
