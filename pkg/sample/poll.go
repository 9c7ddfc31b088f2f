package sample

import (
	"context"
	"time"

	"github.com/itohio/gocharge/pkg/regulator"
)

// TelemetrySource is the read side of a regulation job.
type TelemetrySource interface {
	Telemetry() (regulator.Telemetry, bool)
}

// Poll samples the latest telemetry every interval and emits each new cycle
// once. The channel is closed after the terminal snapshot was emitted or when
// ctx is cancelled. Snapshots produced faster than the interval are skipped.
func Poll(ctx context.Context, src TelemetrySource, interval time.Duration, bufSize int) <-chan regulator.Telemetry {
	if bufSize <= 0 {
		bufSize = 100
	}
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	out := make(chan regulator.Telemetry, bufSize)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var (
			last uint64
			seen bool
		)
		for {
			if t, ok := src.Telemetry(); ok && (!seen || t.Cycle != last || t.State == regulator.StateTerminated) {
				seen = true
				last = t.Cycle

				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
				if t.State == regulator.StateTerminated {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}
