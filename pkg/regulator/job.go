package regulator

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// Params are the operator settable job parameters. The loop reads them as
// one snapshot per cycle.
type Params struct {
	TargetCurrentMilliamps float64
	MaxVoltage             float64
	SenseResistorOhms      float64
	ManualFix              bool
}

// TargetSenseVoltage is the voltage across the sense resistor at the target current.
func (p Params) TargetSenseVoltage() float64 {
	return p.TargetCurrentMilliamps * p.SenseResistorOhms / 1000
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if err := ValidateCurrent(p.TargetCurrentMilliamps); err != nil {
		return err
	}
	if err := ValidateVoltage(p.MaxVoltage); err != nil {
		return err
	}
	if !(p.SenseResistorOhms > 0) || math.IsInf(p.SenseResistorOhms, 0) {
		return fmt.Errorf("sense resistor must be positive, got %g", p.SenseResistorOhms)
	}
	return nil
}

// ValidateCurrent checks a target current in mA.
func ValidateCurrent(mA float64) error {
	if !(mA >= 0) || math.IsInf(mA, 0) {
		return fmt.Errorf("target current must be a non-negative number, got %g", mA)
	}
	return nil
}

// ValidateVoltage checks a maximum load voltage.
func ValidateVoltage(v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("max voltage must be positive, got %g", v)
	}
	return nil
}

// Job is the state shared between the regulation loop and everything else:
// operator parameters, the job-ended flag, the stop request and the latest
// telemetry snapshot. All methods are safe for concurrent use and none of
// them waits for the loop.
type Job struct {
	id string

	mu     sync.RWMutex
	params Params
	ended  bool

	stop     chan struct{}
	stopOnce sync.Once

	telemetry atomic.Pointer[Telemetry]
}

// NewJob creates a job with validated parameters.
func NewJob(p Params) (*Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Job{
		id:     xid.New().String(),
		params: p,
		stop:   make(chan struct{}),
	}, nil
}

// ID returns a unique job identifier.
func (j *Job) ID() string {
	return j.id
}

// Params returns a coherent snapshot of the parameters.
func (j *Job) Params() Params {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.params
}

// SetTargetCurrent sets the charging current in milliamps.
func (j *Job) SetTargetCurrent(mA float64) error {
	if err := ValidateCurrent(mA); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.params.TargetCurrentMilliamps = mA
	return nil
}

// SetMaxVoltage sets the maximum load voltage and re-arms the job-ended flag.
func (j *Job) SetMaxVoltage(v float64) error {
	if err := ValidateVoltage(v); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.params.MaxVoltage = v
	j.ended = false
	return nil
}

// SetManualFix freezes (true) or releases (false) the output correction.
// Over-voltage protection stays active either way.
func (j *Job) SetManualFix(engaged bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.params.ManualFix = engaged
}

// RequestStop asks the loop to terminate. It is idempotent.
func (j *Job) RequestStop() {
	j.stopOnce.Do(func() {
		close(j.stop)
	})
}

// Done is closed once a stop has been requested.
func (j *Job) Done() <-chan struct{} {
	return j.stop
}

// StopRequested reports whether RequestStop was called.
func (j *Job) StopRequested() bool {
	select {
	case <-j.stop:
		return true
	default:
		return false
	}
}

// Ended reports whether the load voltage has converged on its maximum.
func (j *Job) Ended() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.ended
}

// markEnded sets the job-ended flag unless maxVoltage changed since the
// parameters were sampled. Returns true when the flag flipped.
func (j *Job) markEnded(sampled Params) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ended || j.params.MaxVoltage != sampled.MaxVoltage {
		return false
	}
	j.ended = true
	return true
}

// Telemetry returns the latest snapshot. ok is false before the first cycle.
func (j *Job) Telemetry() (t Telemetry, ok bool) {
	p := j.telemetry.Load()
	if p == nil {
		return Telemetry{}, false
	}
	return *p, true
}

// publish replaces the snapshot as a whole.
func (j *Job) publish(t Telemetry) {
	j.telemetry.Store(&t)
}
