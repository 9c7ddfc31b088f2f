// Command gocharge charges a battery with a regulated constant current
// through an Arduino driven emitter follower.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2/app"
	"github.com/itohio/gocharge/pkg/config"
	"github.com/itohio/gocharge/pkg/device"
	"github.com/itohio/gocharge/pkg/meter"
	"github.com/itohio/gocharge/pkg/recorder"
	"github.com/itohio/gocharge/pkg/regulator"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// watchInterval is the print period of the watch command.
const watchInterval = time.Second

// newRootCmd creates the gocharge command with its flags.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gocharge",
		Short: "Constant current battery charger.",
		Long: `gocharge regulates the charging current of a battery by driving the ` +
			`PWM output of an Arduino and sampling the sense resistor and load ` +
			`voltages over a serial link. Measurements are recorded to a CSV file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCharger,
	}

	f := cmd.Flags()
	f.StringP("config", "c", "config.yaml", "Configuration file path")
	f.String("env", ".env", "Dotenv file with GOCHARGE_* overrides")
	f.StringP("port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	f.Bool("mock", false, "Use the simulated charger instead of the serial port")
	f.Bool("plot", false, "Open the live plot window")
	f.StringP("out", "o", "", "CSV output file (default: generated name)")
	f.Float64("current", 0, "Charging current in mA (asked when zero)")
	f.Float64("max-voltage", 0, "Maximum load voltage in V (asked when zero)")
	f.Int("average-samples", 0, "Number of samples to average (0 = disabled)")
	f.String("log-file", "gocharge.log", "Log file path, - for stderr")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// loadConfig reads the configuration file, then the environment, then the flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	env, _ := flags.GetString("env")
	if err := cfg.LoadEnv(env); err != nil {
		return nil, err
	}

	if flags.Changed("port") {
		cfg.Serial.Port, _ = flags.GetString("port")
	}
	if flags.Changed("mock") {
		cfg.Serial.Mock, _ = flags.GetBool("mock")
	}
	if flags.Changed("out") {
		cfg.Recorder.Output, _ = flags.GetString("out")
	}
	if flags.Changed("current") {
		cfg.Job.TargetCurrentMilliamps, _ = flags.GetFloat64("current")
	}
	if flags.Changed("max-voltage") {
		cfg.Job.MaxVoltage, _ = flags.GetFloat64("max-voltage")
	}
	if flags.Changed("average-samples") {
		cfg.Recorder.AverageSamples, _ = flags.GetInt("average-samples")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLog redirects the standard logger to a file closed on exit.
func setupLog(path string) error {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if path == "" || path == "-" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	atexit.Register(func() {
		log.SetOutput(os.Stderr)
		f.Close()
	})
	return nil
}

// askParams fills in job parameters the configuration left at zero.
func askParams(ctx context.Context, p *prompter, cfg *config.Config) (regulator.Params, error) {
	params := regulator.Params{
		TargetCurrentMilliamps: cfg.Job.TargetCurrentMilliamps,
		MaxVoltage:             cfg.Job.MaxVoltage,
		SenseResistorOhms:      cfg.Job.SenseResistorOhms,
	}

	var err error
	if params.TargetCurrentMilliamps == 0 {
		params.TargetCurrentMilliamps, err = p.askFloat(ctx, "Charging current in mA: ", regulator.ValidateCurrent)
		if err != nil {
			return params, err
		}
	}
	if params.MaxVoltage == 0 {
		params.MaxVoltage, err = p.askFloat(ctx, "Maximum voltage in V: ", regulator.ValidateVoltage)
		if err != nil {
			return params, err
		}
	}
	return params, params.Validate()
}

func runCharger(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logFile, _ := cmd.Flags().GetString("log-file")
	if err := setupLog(logFile); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	p := newPrompter(cmd.InOrStdin(), out)

	params, err := askParams(ctx, p, cfg)
	if err != nil {
		return ignoreInterrupt(err)
	}

	start, err := p.askYesNo(ctx, "Start job? (y/n): ")
	if err != nil {
		return ignoreInterrupt(err)
	}
	if !start {
		fmt.Fprintln(out, "Job cancelled")
		return nil
	}

	job, err := regulator.NewJob(params)
	if err != nil {
		return err
	}

	plot, _ := cmd.Flags().GetBool("plot")
	return runJob(ctx, cfg, job, p, out, plot)
}

// runJob starts the regulation loop and the measurement chain, then serves
// the shell until the job is over. Everything is torn down before it returns.
func runJob(ctx context.Context, cfg *config.Config, job *regulator.Job, p *prompter, out io.Writer, plot bool) error {
	rec, err := recorder.New(cfg)
	if err != nil {
		return err
	}

	ch, err := device.Open(cfg)
	if err != nil {
		rec.Close()
		return err
	}

	loop, err := regulator.New(regulator.ConfigFrom(cfg), ch, job)
	if err != nil {
		ch.Close()
		rec.Close()
		return err
	}

	log.Printf("gocharge: job %s started, %gmA up to %gV, recording to %s",
		job.ID(), job.Params().TargetCurrentMilliamps, job.Params().MaxVoltage, rec.Path())
	fmt.Fprintf(out, "Job %s started, recording to %s. Type help for commands.\n", job.ID(), rec.Path())

	rec.OnJobComplete(func() {
		fmt.Fprintln(out, "\njob complete")
	})

	m := meter.New(cfg)
	chain := startMeasurementChain(ctx, cfg, job, m, rec)

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	p.done = job.Done()
	sh := &shell{
		p:          p,
		out:        out,
		job:        job,
		outputPath: rec.Path(),
		lvConst:    cfg.Recorder.LVConst,
		watchEvery: watchInterval,
		charge:     m,
	}

	var shellErr error
	if plot {
		// fyne owns the main goroutine; the shell moves to the background
		w := newPlotWindow(app.NewWithID("com.itohio.gocharge"), cfg, job, m)
		sh.plot = w

		shellDone := make(chan error, 1)
		go func() {
			shellDone <- sh.run(ctx)
			w.quit()
		}()
		w.run()
		job.RequestStop()
		shellErr = <-shellDone
	} else {
		shellErr = sh.run(ctx)
	}

	loopErr := <-loopDone
	recErr := chain.wait()

	fmt.Fprintf(out, "Delivered %.3f mAh, %d rows written to %s\n", m.Charge(), rec.Rows(), rec.Path())
	log.Printf("gocharge: job %s finished, delivered %.3fmAh", job.ID(), m.Charge())

	return errors.Join(shellErr, loopErr, recErr)
}

func ignoreInterrupt(err error) error {
	if errors.Is(err, errInterrupted) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
