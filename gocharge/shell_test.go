package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itohio/gocharge/pkg/regulator"
	"github.com/itohio/gocharge/pkg/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeCharge float64

func (f fakeCharge) Charge() float64 { return float64(f) }

type fakeSelector struct {
	traces []scope.Trace
}

func (f *fakeSelector) SetTrace(t scope.Trace) { f.traces = append(f.traces, t) }

func newTestJob(t *testing.T) *regulator.Job {
	t.Helper()
	job, err := regulator.NewJob(regulator.Params{
		TargetCurrentMilliamps: 100,
		MaxVoltage:             1.5,
		SenseResistorOhms:      22,
	})
	require.NoError(t, err)
	return job
}

func newTestShell(t *testing.T, in io.Reader) (*shell, *regulator.Job, *syncBuffer) {
	t.Helper()
	job := newTestJob(t)
	out := &syncBuffer{}
	p := newPrompter(in, out)
	p.done = job.Done()
	return &shell{
		p:          p,
		out:        out,
		job:        job,
		outputPath: "out.csv",
		lvConst:    0.2,
		watchEvery: 5 * time.Millisecond,
	}, job, out
}

func runShell(t *testing.T, input string) (*regulator.Job, string) {
	t.Helper()
	sh, job, out := newTestShell(t, strings.NewReader(input))
	require.NoError(t, sh.run(context.Background()))
	return job, out.String()
}

func TestShell_SetCurrent(t *testing.T) {
	job, out := runShell(t, "seti\nabc\n-1\n150\n")

	assert.Equal(t, 150.0, job.Params().TargetCurrentMilliamps)
	assert.Contains(t, out, "Please insert a number.")
	assert.Contains(t, out, "Invalid value:")
	assert.Contains(t, out, "Charge current set to 150 mA")
}

func TestShell_SetVoltage(t *testing.T) {
	job, out := runShell(t, "setv\n0\n1.45\n")

	assert.Equal(t, 1.45, job.Params().MaxVoltage)
	assert.Contains(t, out, "Invalid value: max voltage must be positive")
	assert.Contains(t, out, "Maximum voltage set to 1.45 V")
}

func TestShell_FixAndRelease(t *testing.T) {
	job, _ := runShell(t, "fixi\n")
	assert.True(t, job.Params().ManualFix)

	job, _ = runShell(t, "fixi\nreli\n")
	assert.False(t, job.Params().ManualFix)
}

func TestShell_End(t *testing.T) {
	job, out := runShell(t, "end\nmaybe\nn\nend\ny\nseti\n")

	assert.True(t, job.StopRequested())
	assert.Contains(t, out, "Please specify yes or no.")
	assert.Contains(t, out, "job ended")
	// Nothing is read after the job ended
	assert.NotContains(t, out, "Target current in mA")
}

func TestShell_EOFRequestsStop(t *testing.T) {
	job, _ := runShell(t, "")
	assert.True(t, job.StopRequested())

	select {
	case <-job.Done():
	default:
		t.Fatal("job not stopped")
	}
}

func TestShell_UnknownCommand(t *testing.T) {
	_, out := runShell(t, "charge\n\n")

	assert.Contains(t, out, "No such command - charge.")
	assert.Contains(t, out, commandNames())
}

func TestShell_Help(t *testing.T) {
	_, out := runShell(t, "help\n")

	for _, c := range commands {
		assert.Contains(t, out, c.name)
		assert.Contains(t, out, c.help)
	}
}

func TestShell_Show(t *testing.T) {
	_, out := runShell(t, "show\n")

	assert.Contains(t, out, "Output file: out.csv")
	assert.Contains(t, out, "Sense resistor: 22 Ohm")
	assert.Contains(t, out, "Maximum load voltage: 1.5 V")
	assert.Contains(t, out, "Charging current: 100 mA")
	assert.Contains(t, out, "Current fixed: false")
}

func TestShell_StatusWithoutTelemetry(t *testing.T) {
	_, out := runShell(t, "status\n")
	assert.Contains(t, out, "No measurements yet")
}

func TestShell_Plot(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		_, out := runShell(t, "plti\n")
		assert.Contains(t, out, "Plotting is disabled")
	})

	t.Run("selects traces", func(t *testing.T) {
		sh, _, out := newTestShell(t, strings.NewReader("pltv\npltr\nplti\n"))
		sel := &fakeSelector{}
		sh.plot = sel

		require.NoError(t, sh.run(context.Background()))
		assert.Equal(t, []scope.Trace{scope.TraceVoltage, scope.TraceResistance, scope.TraceCurrent}, sel.traces)
		assert.Contains(t, out.String(), "Plotting load resistance")
	})
}

func TestShell_Watch(t *testing.T) {
	r, w := io.Pipe()
	sh, job, out := newTestShell(t, r)
	sh.charge = fakeCharge(1.25)

	done := make(chan error, 1)
	go func() {
		done <- sh.run(context.Background())
	}()

	_, err := io.WriteString(w, "watch\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "No measurements yet") >= 2
	}, time.Second, 5*time.Millisecond)

	// Enter leaves watch, the shell keeps running
	_, err = io.WriteString(w, "\n")
	require.NoError(t, err)
	_, err = io.WriteString(w, "show\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Output file:")
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shell did not return")
	}
	assert.True(t, job.StopRequested())
}

func TestShell_JobStopInterruptsPrompt(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	sh, job, _ := newTestShell(t, r)

	done := make(chan error, 1)
	go func() {
		done <- sh.run(context.Background())
	}()

	job.RequestStop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shell did not return")
	}
}
