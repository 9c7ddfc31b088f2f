package sample

import (
	"testing"
	"time"

	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/regulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTelemetry(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		tm      regulator.Telemetry
		want    Sample
		lvConst float64
	}{
		{
			name:    "charging",
			tm:      regulator.Telemetry{Cycle: 7, Timestamp: now, SenseVoltage: 0.22, LoadVoltage: 1.0, OutputVoltage: 2.5, State: regulator.StateRegulating},
			lvConst: 0.2,
			// 10mA at 1.2V
			want: Sample{Timestamp: now, Cycle: 7, Current: 10, Voltage: 1.2, Resistance: 120, Output: 2.5, State: regulator.StateRegulating},
		},
		{
			name:    "no current",
			tm:      regulator.Telemetry{Cycle: 1, Timestamp: now, LoadVoltage: 1.3, State: regulator.StateManuallyFixed, Ended: true},
			lvConst: 0,
			want:    Sample{Timestamp: now, Cycle: 1, Voltage: 1.3, Resistance: -1, State: regulator.StateManuallyFixed, Ended: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromTelemetry(tt.tm, 22, tt.lvConst)
			assert.Equal(t, tt.want.Timestamp, got.Timestamp)
			assert.Equal(t, tt.want.Cycle, got.Cycle)
			assert.InDelta(t, tt.want.Current, got.Current, 1e-9)
			assert.InDelta(t, tt.want.Voltage, got.Voltage, 1e-9)
			assert.InDelta(t, tt.want.Resistance, got.Resistance, 1e-9)
			assert.Equal(t, tt.want.Output, got.Output)
			assert.Equal(t, tt.want.State, got.State)
			assert.Equal(t, tt.want.Ended, got.Ended)
		})
	}
}

func TestNewConverter_ChannelProcessing(t *testing.T) {
	cfg := config.Default()
	cfg.Recorder.LVConst = 0

	in := make(chan regulator.Telemetry, 3)
	out := NewConverter(cfg, 3)(in)

	for i := range 3 {
		in <- regulator.Telemetry{Cycle: uint64(i + 1), SenseVoltage: 0.22 * float64(i), LoadVoltage: 1}
	}
	close(in)

	var samples []Sample
	for s := range out {
		samples = append(samples, s)
	}

	require.Len(t, samples, 3)
	for i, s := range samples {
		assert.Equal(t, uint64(i+1), s.Cycle)
		assert.InDelta(t, 10*float64(i), s.Current, 1e-9)
	}
	assert.Equal(t, -1.0, samples[0].Resistance)
}

func TestNewConverter_EmptyChannel(t *testing.T) {
	in := make(chan regulator.Telemetry)
	out := NewConverter(config.Default(), 0)(in)
	close(in)

	select {
	case _, ok := <-out:
		assert.False(t, ok, "output should be closed")
	case <-time.After(time.Second):
		t.Fatal("output channel did not close")
	}
}
