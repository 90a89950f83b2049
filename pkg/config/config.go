package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/flightboard/baro"
	"github.com/mklimuk/flightboard/imu"
	"github.com/mklimuk/flightboard/link"
)

// Build information, injected at link time by the dev tool.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Bus backends.
const (
	BackendPeriph  = "periph"
	BackendGobot   = "gobot"
	BackendMCP2221 = "mcp2221"
	BackendSim     = "sim"
)

type BusConfig struct {
	Backend string `yaml:"backend"`
	// Device is the periph bus name, e.g. "/dev/i2c-1" or "1".
	Device string `yaml:"device"`
	// GobotBus is the bus number on the gobot adaptor, -1 for the adaptor default.
	GobotBus int `yaml:"gobot_bus"`
	// MCP2221Index selects one of several USB bridges, -1 when only one is attached.
	MCP2221Index int `yaml:"mcp2221_index"`
}

type BaroConfig struct {
	Address          byte          `yaml:"address"`
	SeaLevelPressure float64       `yaml:"sea_level_pressure"`
	ResetDelay       time.Duration `yaml:"reset_delay"`
}

type IMUConfig struct {
	Address            byte          `yaml:"address"`
	CalibrationSamples int           `yaml:"calibration_samples"`
	SampleDelay        time.Duration `yaml:"sample_delay"`
}

type BoardConfig struct {
	Interval   time.Duration `yaml:"interval"`
	QueueDepth int           `yaml:"queue_depth"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `yaml:"listen"`
}

type Config struct {
	Bus     BusConfig         `yaml:"bus"`
	Baro    BaroConfig        `yaml:"baro"`
	IMU     IMUConfig         `yaml:"imu"`
	Link    link.SerialConfig `yaml:"link"`
	Board   BoardConfig       `yaml:"board"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

func Default() Config {
	return Config{
		Bus: BusConfig{
			Backend:      BackendPeriph,
			Device:       "/dev/i2c-1",
			GobotBus:     -1,
			MCP2221Index: -1,
		},
		Baro: BaroConfig{
			Address:          baro.DefaultAddress,
			SeaLevelPressure: baro.DefaultSeaLevelPressure,
			ResetDelay:       10 * time.Millisecond,
		},
		IMU: IMUConfig{
			Address:            imu.DefaultAddress,
			CalibrationSamples: 100,
			SampleDelay:        10 * time.Millisecond,
		},
		Link: link.SerialConfig{
			Name:        "/dev/ttyS1",
			Baud:        link.DefaultBaud,
			ReadTimeout: 100 * time.Millisecond,
		},
		Board: BoardConfig{
			Interval:   10 * time.Millisecond,
			QueueDepth: 16,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Bus.Backend {
	case BackendPeriph, BackendGobot, BackendMCP2221, BackendSim:
	default:
		return fmt.Errorf("invalid config: unknown bus backend %q", c.Bus.Backend)
	}
	if c.Bus.Backend == BackendPeriph && c.Bus.Device == "" {
		return fmt.Errorf("invalid config: periph backend needs a bus device")
	}
	if c.Baro.Address > 0x7F || c.IMU.Address > 0x7F {
		return fmt.Errorf("invalid config: device addresses are 7-bit")
	}
	if c.Baro.SeaLevelPressure <= 0 {
		return fmt.Errorf("invalid config: sea level pressure must be positive")
	}
	if c.IMU.CalibrationSamples <= 0 {
		return fmt.Errorf("invalid config: calibration needs at least one sample")
	}
	if c.Board.Interval <= 0 {
		return fmt.Errorf("invalid config: sensor interval must be positive")
	}
	if c.Board.QueueDepth <= 0 {
		return fmt.Errorf("invalid config: queue depth must be positive")
	}
	if c.Link.Baud <= 0 {
		return fmt.Errorf("invalid config: baud rate must be positive")
	}
	return nil
}

// Encode writes c as YAML.
func (c Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}
	return enc.Close()
}
