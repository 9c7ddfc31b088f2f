package device

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/gocharge/pkg/config"
)

// Ensure Mock implements Transport and can drop stale responses.
var (
	_ Transport     = (*Mock)(nil)
	_ inputResetter = (*Mock)(nil)
)

// errMockClosed is returned by Read/Write after Close.
var errMockClosed = errors.New("mock: port closed")

// Mock simulates the charger board behind the serial link: a PWM output
// driving an emitter follower that pushes current through the sense
// resistor into a battery. It answers "get <probe>c" and "set <code>c"
// frames exactly like the firmware.
type Mock struct {
	cfg        config.MockConfig
	senseProbe string
	loadProbe  string
	loadFactor float64
	inFull     float64
	outFull    float64

	mu     sync.Mutex
	in     bytes.Buffer // Pending request bytes
	out    bytes.Buffer // Pending response bytes
	closed bool
	faults int // Number of upcoming responses to corrupt

	// Simulation state
	lastUpdate time.Time
	output     int // Current PWM code
	writes     []int
	battery    float64 // Battery EMF (V)
	ticks      uint64
}

// NewMock creates a simulated charger. A nil configuration uses defaults.
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}

	inFull := cfg.Calibration.InputFullScale
	if inFull <= 0 {
		inFull = config.Default().Calibration.InputFullScale
	}
	outFull := cfg.Calibration.OutputFullScale
	if outFull <= 0 {
		outFull = config.Default().Calibration.OutputFullScale
	}

	loadFactor := cfg.Regulator.LoadVoltFactor
	if loadFactor <= 0 {
		loadFactor = config.Default().Regulator.LoadVoltFactor
	}

	return &Mock{
		cfg:        cfg.Mock,
		senseProbe: cfg.Probes.Sense,
		loadProbe:  cfg.Probes.Load,
		loadFactor: loadFactor,
		inFull:     float64(inFull),
		outFull:    float64(outFull),
		lastUpdate: time.Now(),
		battery:    cfg.Mock.BatteryVoltage,
	}
}

// Write accepts request bytes and queues responses for every complete frame.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errMockClosed
	}

	m.in.Write(p)
	for {
		frame, err := m.in.ReadString('c')
		if err != nil {
			// Incomplete frame, keep it for the next write
			m.in.Reset()
			m.in.WriteString(frame)
			break
		}
		m.respond(strings.TrimSpace(strings.TrimSuffix(frame, "c")))
	}

	return len(p), nil
}

// Read returns queued response bytes. With nothing queued it waits for the
// configured latency and returns 0 bytes, like a serial port read timeout.
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errMockClosed
	}
	if m.out.Len() > 0 {
		n, _ := m.out.Read(p)
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	time.Sleep(m.cfg.Latency)
	return 0, nil
}

// Close closes the simulated port.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ResetInputBuffer drops responses that were not read yet.
func (m *Mock) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMockClosed
	}
	m.out.Reset()
	return nil
}

// IsClosed reports whether Close was called.
func (m *Mock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Output returns the last PWM code that was set.
func (m *Mock) Output() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output
}

// Writes returns every PWM code set so far, oldest first.
func (m *Mock) Writes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]int, len(m.writes))
	copy(result, m.writes)
	return result
}

// Battery returns the simulated battery EMF.
func (m *Mock) Battery() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.battery
}

// InjectFaults makes the next n responses malformed.
func (m *Mock) InjectFaults(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = n
}

// respond handles one frame body such as "get 0" or "set 128".
func (m *Mock) respond(frame string) {
	m.advance()

	if m.faults > 0 {
		m.faults--
		m.out.WriteString("?\n")
		return
	}

	cmd, arg, _ := strings.Cut(frame, " ")
	switch cmd {
	case "get":
		code, ok := m.read(arg)
		if !ok {
			m.out.WriteString("?\n")
			return
		}
		fmt.Fprintf(&m.out, "%d\n", code)
	case "set":
		code, err := strconv.Atoi(arg)
		if err != nil || code < 0 || float64(code) > m.outFull {
			m.out.WriteString("1\n")
			return
		}
		m.output = code
		m.writes = append(m.writes, code)
		m.out.WriteString("0\n")
	default:
		m.out.WriteString("?\n")
	}
}

// read returns the ADC code of a probe.
func (m *Mock) read(probe string) (int, bool) {
	emitter, sense := m.circuit()
	var volts float64
	switch probe {
	case m.senseProbe:
		volts = sense
	case m.loadProbe:
		// Emitter is measured through the load probe divider
		volts = emitter / m.loadFactor
	default:
		return 0, false
	}
	volts += m.noise()
	return m.adc(volts), true
}

// circuit returns the emitter voltage and the voltage across the sense resistor.
func (m *Mock) circuit() (emitter, sense float64) {
	drive := float64(m.output) / m.outFull * m.cfg.RailVoltage
	emitter = math.Max(drive-m.cfg.BaseEmitterDrop, 0)

	current := m.current(emitter)
	sense = current * m.cfg.SenseResistorOhms
	// With no current flowing the emitter floats to the battery voltage
	if current == 0 {
		emitter = math.Max(emitter, m.battery)
	}
	return emitter, sense
}

// current returns the charging current in amperes for an emitter voltage.
func (m *Mock) current(emitter float64) float64 {
	r := m.cfg.SenseResistorOhms + m.cfg.InternalResistance
	if r <= 0 {
		return 0
	}
	return math.Max((emitter-m.battery)/r, 0)
}

// advance integrates the battery charge since the last request.
func (m *Mock) advance() {
	now := time.Now()
	dt := now.Sub(m.lastUpdate).Seconds()
	m.lastUpdate = now
	m.ticks++

	drive := float64(m.output) / m.outFull * m.cfg.RailVoltage
	emitter := math.Max(drive-m.cfg.BaseEmitterDrop, 0)
	m.battery += m.current(emitter) * dt * m.cfg.ChargeRate
}

// noise returns a small deterministic disturbance.
func (m *Mock) noise() float64 {
	t := float64(m.ticks)
	return (math.Sin(t*0.7) + math.Cos(t*1.3)) * m.cfg.NoiseLevel * 0.5
}

// adc converts volts to an ADC code referenced to the rail.
func (m *Mock) adc(volts float64) int {
	v := math.Round(volts / m.cfg.RailVoltage * m.inFull)
	if v < 0 {
		return 0
	}
	if v > m.inFull {
		return int(m.inFull)
	}
	return int(v)
}
