package recorder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder(t *testing.T, interval time.Duration) *Recorder {
	t.Helper()
	cfg := config.Default()
	cfg.Recorder.Output = filepath.Join(t.TempDir(), "out.csv")
	cfg.Recorder.WriteInterval = interval
	cfg.Recorder.NotifyEvery = 3
	r, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestPath(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"out.csv", "out.csv"},
		{"OUT.CSV", "OUT.CSV"},
		{"battery", "battery.csv"},
		{"runs/cell1.txt", "runs/cell1.txt.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			assert.Equal(t, tt.want, Path(tt.output))
		})
	}

	generated := Path("")
	assert.True(t, strings.HasPrefix(generated, "gocharge_"))
	assert.True(t, strings.HasSuffix(generated, ".csv"))
	assert.NotEqual(t, generated, Path(""))
}

func TestNew_WritesHeader(t *testing.T) {
	r := newRecorder(t, time.Second)
	assert.Equal(t, []string{Header}, readLines(t, r.Path()))
	assert.Equal(t, 0, r.Rows())
}

func TestNew_InvalidPath(t *testing.T) {
	cfg := config.Default()
	cfg.Recorder.Output = filepath.Join(t.TempDir(), "missing", "out.csv")
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	r := newRecorder(t, time.Second)
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)

	require.NoError(t, r.Write(sample.Sample{Timestamp: ts, Current: 10, Voltage: 1.2, Resistance: 120}))
	require.NoError(t, r.Write(sample.Sample{Timestamp: ts, Current: 0, Voltage: 1.3, Resistance: -1}))

	lines := readLines(t, r.Path())
	require.Len(t, lines, 3)
	assert.Equal(t, "2024-03-01 12:30:45.123456, 120, 1.2, 10", lines[1])
	assert.Equal(t, "2024-03-01 12:30:45.123456, -1, 1.3, 0", lines[2])
	assert.Equal(t, 2, r.Rows())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Error(t, r.Write(sample.Sample{}))
}

func TestWrite_JobCompleteNotice(t *testing.T) {
	r := newRecorder(t, time.Second)

	var notices atomic.Int32
	r.OnJobComplete(func() { notices.Add(1) })

	ended := []bool{false, true, true, false, true, true, true, true, true, true}
	for _, e := range ended {
		require.NoError(t, r.Write(sample.Sample{Timestamp: time.Now(), Ended: e}))
	}

	// Two runs of three writes after the flag dropped once
	assert.Equal(t, int32(2), notices.Load())
}

func TestRecord_WritesLatestPerInterval(t *testing.T) {
	r := newRecorder(t, 20*time.Millisecond)

	in := make(chan sample.Sample)
	done := make(chan error, 1)
	go func() { done <- r.Record(context.Background(), in) }()

	// Burst of samples within one interval collapses into one row
	for i := range 5 {
		in <- sample.Sample{Timestamp: time.Now(), Current: float64(i)}
	}
	require.Eventually(t, func() bool { return r.Rows() == 1 }, time.Second, time.Millisecond)

	// Nothing new, nothing written
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, r.Rows())

	in <- sample.Sample{Timestamp: time.Now(), Current: 42}
	close(in)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Record did not return")
	}

	lines := readLines(t, r.Path())
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], ", 4"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], ", 42"), lines[2])
}

func TestRecord_ContextCancel(t *testing.T) {
	r := newRecorder(t, time.Hour)

	in := make(chan sample.Sample, 1)
	in <- sample.Sample{Timestamp: time.Now(), Current: 7}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Record(ctx, in) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Record did not return")
	}

	// Pending sample is flushed on exit
	lines := readLines(t, r.Path())
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ", 7"))
}
