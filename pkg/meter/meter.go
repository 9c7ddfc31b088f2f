package meter

import (
	"sync"
	"time"

	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/sample"
)

var _ ChargeMeter = (*Meter)(nil)

// ChargeMeter keeps a time window of samples and integrates the delivered charge.
type ChargeMeter interface {
	ProcessSamples(input <-chan sample.Sample)
	Samples() []sample.Sample                                  // Current samples buffer (FIFO, ordered first to last)
	Charge() float64                                           // Charge delivered since the first sample (mAh)
	OnUpdate(func(samples []sample.Sample, charge float64)) // Register callback for updates
}

// Meter implements ChargeMeter.
// Removal from the buffer is based on timestamp (time window), not number of
// samples. The charge integral covers every sample ever processed, including
// the ones that already left the window.
type Meter struct {
	samples []sample.Sample // FIFO buffer ordered first to last
	charge  float64         // Delivered charge (mAh)
	prev    sample.Sample   // Last integrated sample
	hasPrev bool

	mu sync.RWMutex

	callbacks []func(samples []sample.Sample, charge float64)
	cbMu      sync.RWMutex

	windowDuration time.Duration

	// Set when the input channel closes, prevents further callbacks
	shutdown bool
}

// New creates a new Meter.
func New(cfg *config.Config) *Meter {
	return &Meter{
		samples:        make([]sample.Sample, 0),
		windowDuration: time.Duration(cfg.Recorder.WindowSeconds * float64(time.Second)),
	}
}

// ProcessSamples consumes samples until the input channel closes.
// When it does, the shutdown flag is set to prevent further callbacks.
func (m *Meter) ProcessSamples(input <-chan sample.Sample) {
	for s := range input {
		m.processSample(s)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// processSample adds a sample to the buffer and integrates the current.
func (m *Meter) processSample(s sample.Sample) {
	m.mu.Lock()

	m.samples = append(m.samples, s)

	// Remove samples outside time window
	cutoffTime := s.Timestamp.Add(-m.windowDuration)
	cutoffIndex := 0
	for i, old := range m.samples {
		if old.Timestamp.After(cutoffTime) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		m.samples = m.samples[cutoffIndex:]
	}

	// Trapezoidal integration of mA over hours
	if m.hasPrev {
		dt := s.Timestamp.Sub(m.prev.Timestamp).Hours()
		if dt > 0 {
			m.charge += (m.prev.Current + s.Current) / 2 * dt
		}
	}
	m.prev = s
	m.hasPrev = true

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// Samples returns a copy of the current samples buffer.
func (m *Meter) Samples() []sample.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]sample.Sample, len(m.samples))
	copy(result, m.samples)
	return result
}

// Charge returns the charge delivered so far in mAh.
func (m *Meter) Charge() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.charge
}

// OnUpdate registers a callback function that will be called when samples are updated.
// The callback receives a copy of the samples and should return quickly.
func (m *Meter) OnUpdate(callback func(samples []sample.Sample, charge float64)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent again.
// This should be called before feeding the meter from a new chain.
func (m *Meter) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

// notifyCallbacks invokes all registered callbacks with current data.
// Makes copies of data while holding read lock, then calls callbacks without lock.
func (m *Meter) notifyCallbacks() {
	m.mu.RLock()
	samplesCopy := make([]sample.Sample, len(m.samples))
	copy(samplesCopy, m.samples)
	charge := m.charge
	m.mu.RUnlock()

	m.cbMu.RLock()
	callbacks := make([]func(samples []sample.Sample, charge float64), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(samplesCopy, charge)
		}
	}
}
