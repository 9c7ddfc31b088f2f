package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate clears GOCHARGE_* overrides and returns flags pointing away from
// any config or dotenv file in the working directory.
func isolate(t *testing.T) []string {
	t.Helper()
	for _, env := range []string{config.EnvPort, config.EnvBaud, config.EnvMock} {
		t.Setenv(env, "")
	}
	dir := t.TempDir()
	return []string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--env", filepath.Join(dir, "missing.env"),
		"--log-file", "-",
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("serial:\n  port: COM7\njob:\n  target_current_ma: 50\n"), 0o644))

	args := append(isolate(t),
		"--config", cfgPath,
		"--port", "/dev/ttyUSB0",
		"--mock",
		"--current", "120",
		"--max-voltage", "1.45",
		"--average-samples", "4",
		"--out", "run.csv",
	)

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(args))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.True(t, cfg.Serial.Mock)
	assert.Equal(t, 120.0, cfg.Job.TargetCurrentMilliamps)
	assert.Equal(t, 1.45, cfg.Job.MaxVoltage)
	assert.Equal(t, 4, cfg.Recorder.AverageSamples)
	assert.Equal(t, "run.csv", cfg.Recorder.Output)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("serial:\n  port: COM7\njob:\n  target_current_ma: 50\n"), 0o644))

	args := append(isolate(t), "--config", cfgPath)
	t.Setenv(config.EnvBaud, "115200")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(args))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "COM7", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 50.0, cfg.Job.TargetCurrentMilliamps)
	assert.Equal(t, 0.0, cfg.Job.MaxVoltage)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(append(isolate(t), "--current=-1")))

	_, err := loadConfig(cmd)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestAskParams(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		maxV    float64
		input   string
		wantI   float64
		wantV   float64
	}{
		{"both configured", 100, 1.5, "", 100, 1.5},
		{"ask current", 0, 1.5, "x\n80\n", 80, 1.5},
		{"ask both", 0, 0, "80\n0\n1.4\n", 80, 1.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Job.TargetCurrentMilliamps = tt.current
			cfg.Job.MaxVoltage = tt.maxV

			p := newPrompter(strings.NewReader(tt.input), &syncBuffer{})
			params, err := askParams(context.Background(), p, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantI, params.TargetCurrentMilliamps)
			assert.Equal(t, tt.wantV, params.MaxVoltage)
			assert.Equal(t, cfg.Job.SenseResistorOhms, params.SenseResistorOhms)
		})
	}
}

func runCommand(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	cmd := newRootCmd()
	cmd.SetArgs(append(isolate(t), args...))
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(out)
	cmd.SetErr(out)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_Cancelled(t *testing.T) {
	csv := filepath.Join(t.TempDir(), "cancelled.csv")
	out, err := runCommand(t, "n\n", "--mock", "--current", "100", "--max-voltage", "1.5", "--out", csv)

	require.NoError(t, err)
	assert.Contains(t, out, "Job cancelled")
	assert.NoFileExists(t, csv)
}

func TestRun_MockJob(t *testing.T) {
	csv := filepath.Join(t.TempDir(), "job.csv")
	out, err := runCommand(t, "120\n1.5\ny\nshow\nend\ny\n", "--mock", "--out", csv)
	require.NoError(t, err)

	assert.Contains(t, out, "Charging current in mA: ")
	assert.Contains(t, out, "Start job? (y/n): ")
	assert.Contains(t, out, "Charging current: 120 mA")
	assert.Contains(t, out, "job ended")
	assert.Contains(t, out, "Delivered ")
	assert.Contains(t, out, csv)

	f, err := os.Open(csv)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	assert.Equal(t, recorder.Header, scanner.Text())
}
