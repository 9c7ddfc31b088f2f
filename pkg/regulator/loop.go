package regulator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/itohio/gocharge/pkg/calib"
	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/pid"
)

const (
	// MaxOutputVoltage is the upper bound of the drive output.
	MaxOutputVoltage = calib.FullScaleVolts

	// shutdownAttempts is how many times the zero output is written on exit.
	shutdownAttempts = 3
)

// ErrAlreadyRun is returned when Run is called more than once.
var ErrAlreadyRun = errors.New("regulator: loop already run")

// Channel is the device link used by the loop. *device.Channel implements it.
type Channel interface {
	ReadInput(probe string) (float64, error)
	WriteOutput(probe string, volts float64) error
	Calibration() calib.Calibration
	Close() error
}

// Config holds the fixed loop configuration of a job.
type Config struct {
	SenseProbe             string
	LoadProbe              string
	OutputProbe            string
	Gains                  pid.Gains
	WindowSize             int
	MaxVoltError           float64       // Convergence tolerance (V)
	LoadVoltFactor         float64       // Load probe divider ratio
	Period                 time.Duration // Cycle period
	MaxConsecutiveFailures int           // Failed cycles in a row before the job is aborted
}

// ConfigFrom extracts the loop configuration from the application configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SenseProbe:             cfg.Probes.Sense,
		LoadProbe:              cfg.Probes.Load,
		OutputProbe:            cfg.Probes.Output,
		Gains:                  cfg.Regulator.Gains,
		WindowSize:             cfg.Regulator.WindowSize,
		MaxVoltError:           cfg.Regulator.MaxVoltError,
		LoadVoltFactor:         cfg.Regulator.LoadVoltFactor,
		Period:                 cfg.Regulator.Period,
		MaxConsecutiveFailures: cfg.Regulator.MaxConsecutiveFailures,
	}
}

// Loop is the regulation actor. It exclusively owns the channel for its
// whole lifetime and closes it when Run returns.
type Loop struct {
	cfg Config
	ch  Channel
	out calib.Affine
	job *Job

	senseErr *pid.Window
	loadErr  *pid.Window

	// Setpoints the windows are currently based on
	target float64
	maxV   float64

	output   float64
	cycle    uint64
	failures int

	state   atomic.Int32
	started atomic.Bool
}

// New creates a loop for a job.
func New(cfg Config, ch Channel, job *Job) (*Loop, error) {
	if ch == nil {
		return nil, errors.New("regulator: channel required")
	}
	if job == nil {
		return nil, errors.New("regulator: job required")
	}
	if cfg.Period <= 0 {
		return nil, errors.New("regulator: period must be > 0")
	}
	if cfg.MaxVoltError <= 0 {
		return nil, errors.New("regulator: max volt error must be > 0")
	}
	if cfg.LoadVoltFactor == 0 {
		cfg.LoadVoltFactor = 1
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 1
	}

	cal := ch.Calibration()
	if err := cal.Output.Validate(); err != nil {
		return nil, fmt.Errorf("regulator: output %w", err)
	}

	p := job.Params()
	return &Loop{
		cfg:      cfg,
		ch:       ch,
		out:      cal.Output,
		job:      job,
		senseErr: pid.NewWindow(cfg.WindowSize),
		loadErr:  pid.NewWindow(cfg.WindowSize),
		target:   p.TargetSenseVoltage(),
		maxV:     p.MaxVoltage,
	}, nil
}

// State returns the current loop state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run drives the output until the job is stopped, ctx is cancelled or the
// link fails MaxConsecutiveFailures cycles in a row. On every return path the
// output is driven to 0V and the channel is closed.
func (l *Loop) Run(ctx context.Context) (err error) {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	defer func() {
		err = errors.Join(err, l.shutdown())
	}()

	log.Printf("regulator: job %s started", l.job.ID())

	if err := l.ch.WriteOutput(l.cfg.OutputProbe, 0); err != nil {
		l.failures++
		log.Printf("regulator: initial output reset failed: %v", err)
	}

	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	for {
		if stop, reason := l.stopping(ctx); stop {
			log.Printf("regulator: job %s stopping: %s", l.job.ID(), reason)
			return nil
		}

		if err := l.step(); err != nil {
			l.failures++
			log.Printf("regulator: cycle %d failed (%d/%d): %v", l.cycle, l.failures, l.cfg.MaxConsecutiveFailures, err)
			if l.failures >= l.cfg.MaxConsecutiveFailures {
				return fmt.Errorf("regulator: aborting after %d consecutive failures: %w", l.failures, err)
			}
		} else {
			l.failures = 0
		}

		select {
		case <-ctx.Done():
		case <-l.job.Done():
		case <-ticker.C:
		}
	}
}

// stopping checks the cooperative stop signals.
func (l *Loop) stopping(ctx context.Context) (bool, string) {
	select {
	case <-l.job.Done():
		return true, "stop requested"
	case <-ctx.Done():
		return true, ctx.Err().Error()
	default:
		return false, ""
	}
}

// step performs one regulation cycle.
func (l *Loop) step() error {
	p := l.job.Params()
	l.cycle++

	state := StateRegulating
	if p.ManualFix {
		state = StateManuallyFixed
	}
	l.state.Store(int32(state))

	l.rebase(p)

	now := time.Now()
	sense, err := l.ch.ReadInput(l.cfg.SenseProbe)
	if err != nil {
		return err
	}
	probe, err := l.ch.ReadInput(l.cfg.LoadProbe)
	if err != nil {
		return err
	}
	load := probe*l.cfg.LoadVoltFactor - sense

	l.senseErr.Push(sense - l.target)
	l.loadErr.Push(load - l.maxV)

	if pid.Converged(l.loadErr.Samples(), l.loadErr.Size(), l.cfg.MaxVoltError) && l.job.markEnded(p) {
		log.Printf("regulator: job %s ended, load voltage %.3fV settled at %.3fV", l.job.ID(), load, p.MaxVoltage)
	}

	prev := l.output
	correction := pid.Step(l.senseErr.Samples(), l.cfg.Gains)
	output := prev
	if state == StateRegulating {
		output = prev - correction
	}
	if output > MaxOutputVoltage {
		output = MaxOutputVoltage
	}

	// Over-voltage protection is independent of the manual fix.
	if load > p.MaxVoltage {
		output = prev - math.Abs(correction)
	}

	code, _ := l.out.ToDigital(output)
	l.job.publish(Telemetry{
		Cycle:         l.cycle,
		Timestamp:     now,
		SenseVoltage:  sense,
		LoadVoltage:   load,
		OutputCode:    code,
		OutputVoltage: output,
		Step:          math.Abs(correction),
		State:         state,
		Ended:         l.job.Ended(),
	})

	if err := l.ch.WriteOutput(l.cfg.OutputProbe, output); err != nil {
		return err
	}
	l.output = output
	return nil
}

// rebase shifts the error histories when the operator changed a setpoint,
// so every sample is measured against the current target.
func (l *Loop) rebase(p Params) {
	if target := p.TargetSenseVoltage(); target != l.target {
		l.senseErr.Shift(l.target - target)
		l.target = target
	}
	if p.MaxVoltage != l.maxV {
		l.loadErr.Shift(l.maxV - p.MaxVoltage)
		l.maxV = p.MaxVoltage
	}
}

// shutdown drives the output to zero and closes the channel.
func (l *Loop) shutdown() error {
	var zeroErr error
	for range shutdownAttempts {
		if zeroErr = l.ch.WriteOutput(l.cfg.OutputProbe, 0); zeroErr == nil {
			break
		}
		log.Printf("regulator: failed to zero output: %v", zeroErr)
	}
	if zeroErr == nil {
		l.output = 0
	} else {
		zeroErr = fmt.Errorf("regulator: zero output: %w", zeroErr)
	}

	closeErr := l.ch.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("regulator: close channel: %w", closeErr)
	}

	l.state.Store(int32(StateTerminated))
	last, _ := l.job.Telemetry()
	code, _ := l.out.ToDigital(l.output)
	l.job.publish(Telemetry{
		Cycle:         l.cycle,
		Timestamp:     time.Now(),
		SenseVoltage:  last.SenseVoltage,
		LoadVoltage:   last.LoadVoltage,
		OutputCode:    code,
		OutputVoltage: l.output,
		State:         StateTerminated,
		Ended:         l.job.Ended(),
	})
	l.job.RequestStop()

	log.Printf("regulator: job %s terminated", l.job.ID())
	return errors.Join(zeroErr, closeErr)
}
