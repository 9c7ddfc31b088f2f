package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/itohio/gocharge/pkg/pid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file configuration.
const (
	EnvPort = "GOCHARGE_PORT"
	EnvBaud = "GOCHARGE_BAUD"
	EnvMock = "GOCHARGE_MOCK"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Probes      ProbesConfig      `yaml:"probes"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Regulator   RegulatorConfig   `yaml:"regulator"`
	Job         JobConfig         `yaml:"job"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // Per response line
	Mock        bool          `yaml:"mock"`         // Use the simulated charger instead of the port
}

// ProbesConfig names the device channels used in the wire protocol.
type ProbesConfig struct {
	Sense  string `yaml:"sense"`  // Voltage across the sense resistor
	Load   string `yaml:"load"`   // Emitter voltage (divided by the load factor)
	Output string `yaml:"output"` // Drive output
}

// CalibrationConfig contains the two reference measurements and converter resolutions.
type CalibrationConfig struct {
	Measured5V      float64 `yaml:"measured_5v"`  // 5V rail as measured with a multimeter
	MeasuredGND     float64 `yaml:"measured_gnd"` // GND as measured with a multimeter
	InputFullScale  int     `yaml:"input_full_scale"`
	OutputFullScale int     `yaml:"output_full_scale"`
}

// RegulatorConfig contains control loop parameters.
type RegulatorConfig struct {
	Gains                  pid.Gains     `yaml:"gains"`
	WindowSize             int           `yaml:"window_size"`
	MaxVoltError           float64       `yaml:"max_volt_error"` // Convergence tolerance (V)
	LoadVoltFactor         float64       `yaml:"load_volt_factor"`
	Period                 time.Duration `yaml:"period"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
}

// JobConfig contains the operator supplied job parameters.
// Zero values are asked for interactively.
type JobConfig struct {
	SenseResistorOhms      float64 `yaml:"sense_resistor_ohms"`
	TargetCurrentMilliamps float64 `yaml:"target_current_ma"`
	MaxVoltage             float64 `yaml:"max_voltage"`
}

// RecorderConfig contains CSV recording parameters.
type RecorderConfig struct {
	Output         string        `yaml:"output"`          // CSV file path, empty = generated name
	SampleInterval time.Duration `yaml:"sample_interval"` // Telemetry polling period
	WriteInterval  time.Duration `yaml:"write_interval"`  // CSV row period
	WindowSeconds  float64       `yaml:"window_seconds"`  // History kept for plotting
	LVConst        float64       `yaml:"lv_const"`        // Offset added to the load voltage (V)
	NotifyEvery    int           `yaml:"notify_every"`    // Writes between "job complete" notices
	AverageSamples int           `yaml:"average_samples"` // Moving average window, 0 = disabled
}

// MockConfig contains simulated charger configuration.
type MockConfig struct {
	RailVoltage        float64       `yaml:"rail_voltage"`        // Actual 5V rail (ADC reference)
	BaseEmitterDrop    float64       `yaml:"base_emitter_drop"`   // Transistor Vbe (V)
	SenseResistorOhms  float64       `yaml:"sense_resistor_ohms"` // Sense resistor fitted on the board
	BatteryVoltage     float64       `yaml:"battery_voltage"`     // Initial battery EMF (V)
	InternalResistance float64       `yaml:"internal_resistance"` // Battery internal resistance (Ohm)
	ChargeRate         float64       `yaml:"charge_rate"`         // EMF rise per coulomb (V/C)
	NoiseLevel         float64       `yaml:"noise_level"`         // Measurement noise (V)
	Latency            time.Duration `yaml:"latency"`             // Simulated round trip
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "COM23", // "/dev/ttyACM0" on Linux/Mac
			BaudRate:    9600,
			ReadTimeout: time.Second,
		},
		Probes: ProbesConfig{
			Sense:  "0",
			Load:   "1",
			Output: "5",
		},
		Calibration: CalibrationConfig{
			Measured5V:      4.7,
			MeasuredGND:     0.0,
			InputFullScale:  1023,
			OutputFullScale: 255,
		},
		Regulator: RegulatorConfig{
			Gains:                  pid.Gains{P: 0.3, I: 0.0, D: 0.0},
			WindowSize:             pid.DefaultWindowSize,
			MaxVoltError:           0.1,
			LoadVoltFactor:         2,
			Period:                 10 * time.Millisecond,
			MaxConsecutiveFailures: 5,
		},
		Job: JobConfig{
			SenseResistorOhms: 22,
		},
		Recorder: RecorderConfig{
			Output:         "out.csv",
			SampleInterval: 10 * time.Millisecond,
			WriteInterval:  time.Second,
			WindowSeconds:  60,
			LVConst:        0.2,
			NotifyEvery:    10,
		},
		Mock: MockConfig{
			RailVoltage:        4.7,
			BaseEmitterDrop:    0.7,
			SenseResistorOhms:  22,
			BatteryVoltage:     1.0,
			InternalResistance: 0.5,
			ChargeRate:         0.05,
			NoiseLevel:         0.002,
			Latency:            time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// LoadEnv reads an optional dotenv file into the process environment and
// applies GOCHARGE_* overrides to the configuration.
func (c *Config) LoadEnv(dotenv string) error {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	if port := os.Getenv(EnvPort); port != "" {
		c.Serial.Port = port
	}
	if baud := os.Getenv(EnvBaud); baud != "" {
		v, err := strconv.Atoi(baud)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvBaud, err)
		}
		c.Serial.BaudRate = v
	}
	if mock := os.Getenv(EnvMock); mock != "" {
		v, err := strconv.ParseBool(mock)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMock, err)
		}
		c.Serial.Mock = v
	}

	return nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Calibration.Measured5V == c.Calibration.MeasuredGND {
		return errors.New("calibration: 5V and GND measurements must differ")
	}
	if c.Job.SenseResistorOhms <= 0 {
		return errors.New("job: sense resistor must be positive")
	}
	if c.Job.TargetCurrentMilliamps < 0 {
		return errors.New("job: target current must not be negative")
	}
	if c.Job.MaxVoltage < 0 {
		return errors.New("job: max voltage must not be negative")
	}
	if c.Recorder.AverageSamples < 0 {
		return errors.New("recorder: average samples must not be negative")
	}
	if c.Regulator.MaxVoltError <= 0 {
		return errors.New("regulator: max volt error must be positive")
	}
	if c.Probes.Sense == c.Probes.Load {
		return errors.New("probes: sense and load probes must differ")
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}

	if c.Probes.Sense == "" {
		c.Probes.Sense = def.Probes.Sense
	}
	if c.Probes.Load == "" {
		c.Probes.Load = def.Probes.Load
	}
	if c.Probes.Output == "" {
		c.Probes.Output = def.Probes.Output
	}

	if c.Calibration.InputFullScale == 0 {
		c.Calibration.InputFullScale = def.Calibration.InputFullScale
	}
	if c.Calibration.OutputFullScale == 0 {
		c.Calibration.OutputFullScale = def.Calibration.OutputFullScale
	}

	if c.Regulator.WindowSize == 0 {
		c.Regulator.WindowSize = def.Regulator.WindowSize
	}
	if c.Regulator.MaxVoltError == 0 {
		c.Regulator.MaxVoltError = def.Regulator.MaxVoltError
	}
	if c.Regulator.LoadVoltFactor == 0 {
		c.Regulator.LoadVoltFactor = def.Regulator.LoadVoltFactor
	}
	if c.Regulator.Period == 0 {
		c.Regulator.Period = def.Regulator.Period
	}
	if c.Regulator.MaxConsecutiveFailures == 0 {
		c.Regulator.MaxConsecutiveFailures = def.Regulator.MaxConsecutiveFailures
	}

	if c.Job.SenseResistorOhms == 0 {
		c.Job.SenseResistorOhms = def.Job.SenseResistorOhms
	}

	if c.Recorder.SampleInterval == 0 {
		c.Recorder.SampleInterval = def.Recorder.SampleInterval
	}
	if c.Recorder.WriteInterval == 0 {
		c.Recorder.WriteInterval = def.Recorder.WriteInterval
	}
	if c.Recorder.WindowSeconds == 0 {
		c.Recorder.WindowSeconds = def.Recorder.WindowSeconds
	}
	if c.Recorder.NotifyEvery == 0 {
		c.Recorder.NotifyEvery = def.Recorder.NotifyEvery
	}

	if c.Mock.RailVoltage == 0 {
		c.Mock.RailVoltage = def.Mock.RailVoltage
	}
	if c.Mock.SenseResistorOhms == 0 {
		c.Mock.SenseResistorOhms = def.Mock.SenseResistorOhms
	}
	if c.Mock.ChargeRate == 0 {
		c.Mock.ChargeRate = def.Mock.ChargeRate
	}
}
