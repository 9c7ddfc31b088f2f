package scope

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"
	"github.com/itohio/gocharge/pkg/sample"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor = color.RGBA{R: 255, G: 165, B: 0, A: 255} // Orange
	titleColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// Plot margins
const (
	marginLeft   = float32(60.0)
	marginRight  = float32(20.0)
	marginTop    = float32(20.0)
	marginBottom = float32(40.0)
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// plotArea maps sample space to widget coordinates.
type plotArea struct {
	x, y, width, height float32
	yMin, yMax          float64
	xMin                time.Time
	xSpan               float64 // Seconds
}

func newPlotArea(size fyne.Size, yMin, yMax float64, xMin, xMax time.Time) plotArea {
	return plotArea{
		x:      marginLeft,
		y:      marginTop,
		width:  math32.Max(size.Width-marginLeft-marginRight, 0),
		height: math32.Max(size.Height-marginTop-marginBottom, 0),
		yMin:   yMin,
		yMax:   yMax,
		xMin:   xMin,
		xSpan:  xMax.Sub(xMin).Seconds(),
	}
}

// point returns the widget position of a value at a time, clamped to the plot.
func (p plotArea) point(t time.Time, v float64) fyne.Position {
	fx := float32(0)
	if p.xSpan > 0 {
		fx = float32(t.Sub(p.xMin).Seconds() / p.xSpan)
	}
	fy := float32(0)
	if p.yMax != p.yMin {
		fy = float32((v - p.yMin) / (p.yMax - p.yMin))
	}
	fx = math32.Min(math32.Max(fx, 0), 1)
	fy = math32.Min(math32.Max(fy, 0), 1)
	return fyne.NewPos(p.x+fx*p.width, p.y+p.height-fy*p.height)
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		// Redraw with the new dimensions
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	samples := r.scope.displaySamples
	trace := r.scope.trace
	charge := r.scope.charge
	yMin, yMax := r.scope.yMin, r.scope.yMax
	xMin, xMax := r.scope.xMin, r.scope.xMax
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	// Clear old objects (but keep grid)
	r.objects = []fyne.CanvasObject{r.grid}

	area := newPlotArea(size, yMin, yMax, xMin, xMax)
	r.drawGrid(area, trace, xMax)
	r.drawTrace(area, trace, samples)
	r.drawTitle(area, trace, samples, charge)
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(area plotArea, trace Trace, xMax time.Time) {
	numHLines := 8
	for i := range numHLines + 1 {
		y := area.y + float32(i)*area.height/float32(numHLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(area.x, y)
		line.Position2 = fyne.NewPos(area.x+area.width, y)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		value := area.yMax - float64(i)*(area.yMax-area.yMin)/float64(numHLines)
		text := canvas.NewText(formatValue(value, trace.Unit()), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(area.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	numVLines := 10
	for i := range numVLines + 1 {
		x := area.x + float32(i)*area.width/float32(numVLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(x, area.y)
		line.Position2 = fyne.NewPos(x, area.y+area.height)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		offset := time.Duration(float64(i) * area.xSpan / float64(numVLines) * float64(time.Second))
		text := canvas.NewText(formatTime(offset), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, area.y+area.height+5))
		r.objects = append(r.objects, text)
	}
}

// drawTrace draws the selected curve. Samples without a value break the line.
func (r *scopeRenderer) drawTrace(area plotArea, trace Trace, samples []sample.Sample) {
	var (
		prev    fyne.Position
		hasPrev bool
	)
	for _, s := range samples {
		v, ok := trace.Value(s)
		if !ok {
			hasPrev = false
			continue
		}
		pos := area.point(s.Timestamp, v)
		if hasPrev {
			line := canvas.NewLine(traceColor)
			line.Position1 = prev
			line.Position2 = pos
			line.StrokeWidth = 1.5
			r.objects = append(r.objects, line)
		}
		prev = pos
		hasPrev = true
	}
}

// drawTitle draws the trace name, its latest value and the delivered charge.
func (r *scopeRenderer) drawTitle(area plotArea, trace Trace, samples []sample.Sample, charge float64) {
	title := trace.Title()
	if len(samples) > 0 {
		if v, ok := trace.Value(samples[len(samples)-1]); ok {
			title += "  " + formatValue(v, trace.Unit())
		}
	}
	title += fmt.Sprintf("   delivered %.3f mAh", charge)

	text := canvas.NewText(title, titleColor)
	text.TextSize = 11
	text.Alignment = fyne.TextAlignLeading
	text.Move(fyne.NewPos(area.x+10, area.y+10))
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatValue(v float64, unit string) string {
	if math.Abs(v) < 0.001 {
		v = 0
	}
	return fmt.Sprintf("%.3g%s", v, unit)
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
