package main

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/meter"
	"github.com/itohio/gocharge/pkg/regulator"
	"github.com/itohio/gocharge/pkg/sample"
	"github.com/itohio/gocharge/pkg/scope"
)

// Throttle scope updates to ~60 FPS
const plotUpdateInterval = 16 * time.Millisecond

var traces = [...]scope.Trace{scope.TraceCurrent, scope.TraceVoltage, scope.TraceResistance}

// plotWindow is the live chart of a running job.
type plotWindow struct {
	app    fyne.App
	window fyne.Window
	job    *regulator.Job
	scope  *scope.ScopeWidget

	traceBtns [len(traces)]*widget.Button
	fixBtn    *widget.Button

	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// newPlotWindow builds the chart window and subscribes it to the meter.
// Closing the window only hides it; the plot commands show it again.
func newPlotWindow(a fyne.App, cfg *config.Config, job *regulator.Job, m *meter.Meter) *plotWindow {
	w := &plotWindow{
		app:    a,
		window: a.NewWindow("gocharge " + job.ID()),
		job:    job,
		scope:  scope.New(cfg),
	}
	w.window.Resize(fyne.NewSize(1200, 800))
	w.window.CenterOnScreen()
	w.window.SetCloseIntercept(w.window.Hide)

	w.window.SetContent(container.NewBorder(
		w.createToolbar(),
		nil,
		nil,
		nil,
		w.scope,
	))
	w.updateButtons()

	m.OnUpdate(w.onUpdate)
	return w
}

// createToolbar creates the trace selectors on the left and the job controls on the right.
func (w *plotWindow) createToolbar() fyne.CanvasObject {
	left := container.NewHBox()
	for i, t := range traces {
		w.traceBtns[i] = widget.NewButton(t.Title(), func() {
			w.scope.SetTrace(t)
			w.updateButtons()
		})
		left.Add(w.traceBtns[i])
	}

	w.fixBtn = widget.NewButtonWithIcon("fix current", theme.MediaPauseIcon(), func() {
		w.job.SetManualFix(!w.job.Params().ManualFix)
		w.updateButtons()
	})

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), w.showSettingsDialog)

	endBtn := widget.NewButtonWithIcon("", theme.MediaStopIcon(), func() {
		dialog.ShowConfirm("End job", "Are you sure?", func(ok bool) {
			if ok {
				w.job.RequestStop()
			}
		}, w.window)
	})

	return container.NewBorder(
		nil,
		nil,
		left,
		container.NewHBox(w.fixBtn, settingsBtn, endBtn),
		nil,
	)
}

// showSettingsDialog edits the live job parameters. Nothing is written back
// to the configuration file.
func (w *plotWindow) showSettingsDialog() {
	p := w.job.Params()

	currentEntry := widget.NewEntry()
	currentEntry.SetText(strconv.FormatFloat(p.TargetCurrentMilliamps, 'g', -1, 64))

	voltageEntry := widget.NewEntry()
	voltageEntry.SetText(strconv.FormatFloat(p.MaxVoltage, 'g', -1, 64))

	items := []*widget.FormItem{
		{Text: "Charging current (mA)", Widget: currentEntry},
		{Text: "Maximum voltage (V)", Widget: voltageEntry},
	}

	d := dialog.NewForm("Job", "Apply", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		if err := w.applySettings(currentEntry.Text, voltageEntry.Text); err != nil {
			dialog.ShowError(err, w.window)
		}
	}, w.window)
	d.Resize(fyne.NewSize(400, 200))
	d.Show()
}

// applySettings parses and applies both values. Nothing is applied unless
// both are valid.
func (w *plotWindow) applySettings(current, voltage string) error {
	mA, err := parseNumber(current)
	if err != nil {
		return fmt.Errorf("charging current: %w", err)
	}
	v, err := parseNumber(voltage)
	if err != nil {
		return fmt.Errorf("maximum voltage: %w", err)
	}
	if err := errors.Join(regulator.ValidateCurrent(mA), regulator.ValidateVoltage(v)); err != nil {
		return err
	}
	if err := w.job.SetTargetCurrent(mA); err != nil {
		return err
	}
	return w.job.SetMaxVoltage(v)
}

// onUpdate forwards meter updates to the scope on the main thread.
func (w *plotWindow) onUpdate(samples []sample.Sample, charge float64) {
	w.updateMu.Lock()
	now := time.Now()
	if now.Sub(w.lastUpdateTime) < plotUpdateInterval {
		w.updateMu.Unlock()
		return
	}
	w.lastUpdateTime = now
	w.updateMu.Unlock()

	fyne.Do(func() {
		w.scope.UpdateData(samples, charge)
		w.updateButtons()
	})
}

// SetTrace switches the plotted trace and brings the window up.
// Safe to call from any goroutine.
func (w *plotWindow) SetTrace(t scope.Trace) {
	fyne.Do(func() {
		w.scope.SetTrace(t)
		w.updateButtons()
		w.window.Show()
	})
}

// updateButtons highlights the selected trace and the manual fix state.
func (w *plotWindow) updateButtons() {
	selected := w.scope.Trace()
	for i, t := range traces {
		updateToggleButton(w.traceBtns[i], t == selected)
	}
	updateToggleButton(w.fixBtn, w.job.Params().ManualFix)
}

func updateToggleButton(btn *widget.Button, isOn bool) {
	if btn == nil {
		return
	}
	if isOn {
		btn.Importance = widget.HighImportance
	} else {
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}

// run shows the window and blocks in the fyne event loop until quit.
func (w *plotWindow) run() {
	w.window.Show()
	w.app.Run()
}

// quit stops the event loop. Safe to call from any goroutine.
func (w *plotWindow) quit() {
	fyne.Do(w.app.Quit)
}
