package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/itohio/gocharge/pkg/regulator"
	"github.com/itohio/gocharge/pkg/sample"
	"github.com/itohio/gocharge/pkg/scope"
)

// chargeReader reports the charge delivered so far. *meter.Meter implements it.
type chargeReader interface {
	Charge() float64
}

// traceSelector switches the plotted trace. *scope.ScopeWidget implements it
// through plotWindow.
type traceSelector interface {
	SetTrace(scope.Trace)
}

// shell is the interactive command loop of a running job.
type shell struct {
	p   *prompter
	out io.Writer
	job *regulator.Job

	outputPath string
	lvConst    float64
	watchEvery time.Duration

	charge chargeReader  // Optional
	plot   traceSelector // Optional, nil without --plot
}

type command struct {
	name string
	help string
	run  func(s *shell, ctx context.Context) (quit bool, err error)
}

// commands is filled in init because help lists it.
var commands []command

func init() {
	commands = []command{
		{"watch", "print current values periodically until Enter is pressed", (*shell).watch},
		{"seti", "set charging current", (*shell).setCurrent},
		{"setv", "set maximum voltage", (*shell).setVoltage},
		{"fixi", "fix charging current without further changes", (*shell).fix},
		{"reli", "release fixed state of charging current to allow variations", (*shell).release},
		{"plti", "view load current vs time plot", plotCommand(scope.TraceCurrent)},
		{"pltv", "view load voltage vs time plot", plotCommand(scope.TraceVoltage)},
		{"pltr", "view load resistance vs time plot", plotCommand(scope.TraceResistance)},
		{"show", "show current job parameters", (*shell).show},
		{"status", "show the latest measurement", (*shell).status},
		{"end", "end current job", (*shell).end},
		{"help", "display this message", (*shell).help},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// run reads commands until the operator ends the job, the input is exhausted
// or the job terminates on its own. A stop is requested on every return.
func (s *shell) run(ctx context.Context) error {
	defer s.job.RequestStop()

	for {
		prompt := "> "
		if s.job.Ended() {
			prompt = "job_completed > "
		}

		name, err := s.p.ask(ctx, prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, errInterrupted) {
				return nil
			}
			return err
		}
		if name == "" {
			continue
		}

		cmd, ok := lookupCommand(name)
		if !ok {
			fmt.Fprintf(s.out, "No such command - %s. List of commands:\n%s\nFor more details try help.\n", name, commandNames())
			continue
		}

		quit, err := cmd.run(s, ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, errInterrupted) {
				return nil
			}
			return err
		}
		if quit {
			return nil
		}
	}
}

func commandNames() string {
	names := ""
	for i, c := range commands {
		if i > 0 {
			names += ", "
		}
		names += c.name
	}
	return names
}

func (s *shell) help(context.Context) (bool, error) {
	fmt.Fprintln(s.out, "Usage:")
	for _, c := range commands {
		fmt.Fprintf(s.out, "%-7s- %s\n", c.name, c.help)
	}
	return false, nil
}

func (s *shell) watch(ctx context.Context) (bool, error) {
	ticker := time.NewTicker(s.watchEvery)
	defer ticker.Stop()

	for {
		select {
		case _, ok := <-s.p.lines:
			if !ok {
				return false, io.EOF
			}
			return false, nil
		case <-ticker.C:
			s.printTelemetry()
		case <-ctx.Done():
			return false, errInterrupted
		case <-s.job.Done():
			s.printTelemetry()
			return false, errInterrupted
		}
	}
}

func (s *shell) setCurrent(ctx context.Context) (bool, error) {
	v, err := s.p.askFloat(ctx, "Target current in mA: ", s.job.SetTargetCurrent)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(s.out, "Charge current set to %g mA\n", v)
	log.Printf("shell: target current set to %gmA", v)
	return false, nil
}

func (s *shell) setVoltage(ctx context.Context) (bool, error) {
	v, err := s.p.askFloat(ctx, "Maximum voltage in V: ", s.job.SetMaxVoltage)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(s.out, "Maximum voltage set to %g V\n", v)
	log.Printf("shell: max voltage set to %gV", v)
	return false, nil
}

func (s *shell) fix(context.Context) (bool, error) {
	s.job.SetManualFix(true)
	fmt.Fprintln(s.out, "Charging current fixed")
	return false, nil
}

func (s *shell) release(context.Context) (bool, error) {
	s.job.SetManualFix(false)
	fmt.Fprintln(s.out, "Charging current released")
	return false, nil
}

func plotCommand(t scope.Trace) func(*shell, context.Context) (bool, error) {
	return func(s *shell, _ context.Context) (bool, error) {
		if s.plot == nil {
			fmt.Fprintln(s.out, "Plotting is disabled, restart with --plot")
			return false, nil
		}
		s.plot.SetTrace(t)
		fmt.Fprintf(s.out, "Plotting %s\n", t.Title())
		return false, nil
	}
}

func (s *shell) show(context.Context) (bool, error) {
	p := s.job.Params()
	fmt.Fprintf(s.out, "Job: %s\n", s.job.ID())
	fmt.Fprintf(s.out, "Output file: %s\n", s.outputPath)
	fmt.Fprintf(s.out, "Sense resistor: %g Ohm\n", p.SenseResistorOhms)
	fmt.Fprintf(s.out, "Maximum load voltage: %g V\n", p.MaxVoltage)
	fmt.Fprintf(s.out, "Charging current: %g mA\n", p.TargetCurrentMilliamps)
	fmt.Fprintf(s.out, "Current fixed: %t\n", p.ManualFix)
	return false, nil
}

func (s *shell) status(context.Context) (bool, error) {
	s.printTelemetry()
	return false, nil
}

func (s *shell) end(ctx context.Context) (bool, error) {
	sure, err := s.p.askYesNo(ctx, "Are you sure? (y/n): ")
	if err != nil {
		return false, err
	}
	if !sure {
		return false, nil
	}
	s.job.RequestStop()
	fmt.Fprintln(s.out, "job ended")
	return true, nil
}

// printTelemetry prints the load quantities of the latest cycle.
func (s *shell) printTelemetry() {
	t, ok := s.job.Telemetry()
	if !ok {
		fmt.Fprintln(s.out, "No measurements yet")
		return
	}

	smp := sample.FromTelemetry(t, s.job.Params().SenseResistorOhms, s.lvConst)
	load := "Inf"
	if smp.Resistance >= 0 {
		load = fmt.Sprintf("%.1f", smp.Resistance)
	}
	fmt.Fprintf(s.out, "Load: %s Ohm  Current: %.2f mA  Voltage: %.3f V\n", load, smp.Current, smp.Voltage)
	fmt.Fprintf(s.out, "  output: %.3f V (%d)  step: %.4f V  state: %s", t.OutputVoltage, t.OutputCode, t.Step, t.State)
	if t.Ended {
		fmt.Fprint(s.out, "  job complete")
	}
	if s.charge != nil {
		fmt.Fprintf(s.out, "  delivered: %.3f mAh", s.charge.Charge())
	}
	fmt.Fprintln(s.out)
}
