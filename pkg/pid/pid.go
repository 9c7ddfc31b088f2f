package pid

import "math"

// DefaultWindowSize is the number of recent errors the regulator looks at.
const DefaultWindowSize = 5

// Gains are the proportional, integral and derivative coefficients.
type Gains struct {
	P float64 `yaml:"p"`
	I float64 `yaml:"i"`
	D float64 `yaml:"d"`
}

// Window is a bounded FIFO of the most recent error samples.
// Samples are ordered oldest first, newest last.
type Window struct {
	size    int
	samples []float64
}

// NewWindow creates an empty window holding at most size samples.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{
		size:    size,
		samples: make([]float64, 0, size),
	}
}

// Push appends a sample, dropping the oldest one when the window is full.
func (w *Window) Push(v float64) {
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, v)
}

// Samples returns a copy of the window contents.
func (w *Window) Samples() []float64 {
	result := make([]float64, len(w.samples))
	copy(result, w.samples)
	return result
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return len(w.samples) }

// Size returns the capacity of the window.
func (w *Window) Size() int { return w.size }

// Full reports whether the window holds Size samples.
func (w *Window) Full() bool { return len(w.samples) == w.size }

// Shift adds d to every sample, re-basing the history on a new setpoint.
func (w *Window) Shift(d float64) {
	for i := range w.samples {
		w.samples[i] += d
	}
}

// Reset drops all samples.
func (w *Window) Reset() { w.samples = w.samples[:0] }

// Step computes the correction for an error history:
//
//	e[last]*P + sum(e)*I + (e[last]-e[last-1])*D
//
// The derivative term is zero when fewer than two samples are available.
func Step(errs []float64, g Gains) float64 {
	n := len(errs)
	if n == 0 {
		return 0
	}

	last := errs[n-1]

	var sum float64
	for _, e := range errs {
		sum += e
	}

	var diff float64
	if n >= 2 {
		diff = last - errs[n-2]
	}

	return last*g.P + sum*g.I + diff*g.D
}

// Converged reports whether the errors straddle zero while staying within tolerance:
// the window is full, its samples are neither all positive nor all negative,
// and no sample exceeds tolerance in magnitude.
func Converged(errs []float64, size int, tolerance float64) bool {
	if len(errs) == 0 || len(errs) < size {
		return false
	}

	allPositive, allNegative := true, true
	for _, e := range errs {
		if math.Abs(e) > tolerance {
			return false
		}
		if !(e > 0) {
			allPositive = false
		}
		if !(e < 0) {
			allNegative = false
		}
	}

	return !allPositive && !allNegative
}
