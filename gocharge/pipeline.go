package main

import (
	"context"

	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/meter"
	"github.com/itohio/gocharge/pkg/recorder"
	"github.com/itohio/gocharge/pkg/regulator"
	"github.com/itohio/gocharge/pkg/sample"
)

const pipelineBufferSize = 500

// measurementChain tracks the goroutines fed by a running job.
// It drains by itself once the job terminates.
type measurementChain struct {
	meterDone    chan struct{}
	recorderDone chan error
}

// startMeasurementChain polls job telemetry and feeds it through the
// converters into the charge meter and the CSV recorder.
func startMeasurementChain(ctx context.Context, cfg *config.Config, job *regulator.Job, m *meter.Meter, rec *recorder.Recorder) *measurementChain {
	telemetry := sample.Poll(ctx, job, cfg.Recorder.SampleInterval, pipelineBufferSize)

	// Base converter always, averaging only when configured
	samples := sample.NewConverter(cfg, pipelineBufferSize)(telemetry)
	if cfg.Recorder.AverageSamples > 0 {
		samples = sample.NewAveragingConverter(cfg.Recorder.AverageSamples, pipelineBufferSize)(samples)
	}

	forMeter, forRecorder := tee(ctx, samples, pipelineBufferSize)

	chain := &measurementChain{
		meterDone:    make(chan struct{}),
		recorderDone: make(chan error, 1),
	}

	m.ResetShutdown()
	go func() {
		defer close(chain.meterDone)
		m.ProcessSamples(forMeter)
	}()

	go func() {
		chain.recorderDone <- rec.Record(ctx, forRecorder)
	}()

	return chain
}

// wait blocks until both consumers finished and returns the recorder error.
func (c *measurementChain) wait() error {
	<-c.meterDone
	return <-c.recorderDone
}

// tee copies every value of in to both outputs. Both outputs are closed when
// in closes or ctx is cancelled.
func tee[T any](ctx context.Context, in <-chan T, bufSize int) (<-chan T, <-chan T) {
	a := make(chan T, bufSize)
	b := make(chan T, bufSize)

	go func() {
		defer close(a)
		defer close(b)
		for v := range in {
			for _, out := range [...]chan T{a, b} {
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return a, b
}
