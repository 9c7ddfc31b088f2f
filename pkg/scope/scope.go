package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/sample"
)

// Trace selects the plotted quantity.
type Trace int

const (
	TraceCurrent Trace = iota
	TraceVoltage
	TraceResistance
)

// Title returns the plot title of the trace.
func (t Trace) Title() string {
	switch t {
	case TraceVoltage:
		return "load voltage"
	case TraceResistance:
		return "load resistance"
	default:
		return "load current"
	}
}

// Unit returns the unit of the trace values.
func (t Trace) Unit() string {
	switch t {
	case TraceVoltage:
		return "V"
	case TraceResistance:
		return "Ohm"
	default:
		return "mA"
	}
}

// Value extracts the trace value from a sample. ok is false for samples
// without a defined value (resistance with no current flowing).
func (t Trace) Value(s sample.Sample) (v float64, ok bool) {
	switch t {
	case TraceVoltage:
		return s.Voltage, true
	case TraceResistance:
		return s.Resistance, s.Resistance >= 0
	default:
		return s.Current, true
	}
}

// ScopeWidget is a custom Fyne widget that displays one charging trace over time.
type ScopeWidget struct {
	widget.BaseWidget

	cfg *config.Config

	// Data (protected by mu)
	mu      sync.RWMutex
	trace   Trace
	samples []sample.Sample
	charge  float64

	// Display buffer (reused for downsampling)
	displaySamples []sample.Sample

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time

	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	s := &ScopeWidget{
		cfg:              cfg,
		samples:          make([]sample.Sample, 0),
		displaySamples:   make([]sample.Sample, 0, 1000),
		maxDisplayPoints: 1000, // Limit points for efficient rendering
	}
	s.ExtendBaseWidget(s)
	s.updateAutoScale()
	s.Refresh()
	return s
}

// UpdateData updates the widget with new measurement data.
// This should be called from the meter callback using fyne.Do().
func (s *ScopeWidget) UpdateData(samples []sample.Sample, charge float64) {
	s.mu.Lock()
	s.displaySamples = sample.DownsampleSamples(s.displaySamples, samples, s.maxDisplayPoints)
	s.samples = samples
	s.charge = charge
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

// SetTrace switches the plotted quantity.
func (s *ScopeWidget) SetTrace(t Trace) {
	s.mu.Lock()
	s.trace = t
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

// Trace returns the plotted quantity.
func (s *ScopeWidget) Trace() Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trace
}

// updateAutoScale calculates the axis ranges from the display data.
func (s *ScopeWidget) updateAutoScale() {
	window := time.Duration(s.cfg.Recorder.WindowSeconds * float64(time.Second))
	if window <= 0 {
		window = 10 * time.Second
	}

	s.yMin, s.yMax = autoScale(s.trace, s.displaySamples)

	if len(s.displaySamples) == 0 {
		s.xMin = time.Now()
		s.xMax = s.xMin.Add(window)
		return
	}

	s.xMin = s.displaySamples[0].Timestamp
	s.xMax = s.displaySamples[len(s.displaySamples)-1].Timestamp
	// Ensure minimum window
	if s.xMax.Sub(s.xMin) < window {
		s.xMax = s.xMin.Add(window)
	}
}

// autoScale returns the Y range of a trace with a 10% margin.
func autoScale(t Trace, samples []sample.Sample) (yMin, yMax float64) {
	found := false
	for _, s := range samples {
		v, ok := t.Value(s)
		if !ok {
			continue
		}
		if !found {
			yMin, yMax = v, v
			found = true
			continue
		}
		yMin = min(yMin, v)
		yMax = max(yMax, v)
	}
	if !found {
		return 0, 1
	}

	span := yMax - yMin
	if span == 0 {
		span = 1.0
	}
	margin := span * 0.1
	return yMin - margin, yMax + margin
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
