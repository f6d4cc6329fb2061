// Package config loads the host side YAML configuration
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"adbridge/adb"
	"adbridge/host/serial"
)

// Config is the host configuration file
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Bus      BusConfig      `yaml:"bus"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Log      LogConfig      `yaml:"log"`
}

type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
}

// BusConfig is pushed to the bridge with bus_configure after connect.
// Zero values keep the firmware defaults.
type BusConfig struct {
	ToleranceUS    uint32 `yaml:"tolerance_us"`
	PulseTimeoutUS uint32 `yaml:"pulse_timeout_us"`
	SampleCapacity int    `yaml:"sample_capacity"`
	ResetOnConnect bool   `yaml:"reset_on_connect"`
}

type TimeoutsConfig struct {
	Ready    time.Duration `yaml:"ready"`
	Response time.Duration `yaml:"response"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration matching the firmware defaults
func Default() Config {
	t := adb.DefaultTiming()
	sc := serial.DefaultConfig("/dev/ttyACM0")
	return Config{
		Serial: SerialConfig{
			Device:        sc.Device,
			Baud:          sc.Baud,
			ReadTimeoutMS: sc.ReadTimeout,
		},
		Bus: BusConfig{
			ToleranceUS:    t.Tolerance,
			PulseTimeoutUS: t.PulseTimeout,
			SampleCapacity: t.SampleCapacity,
		},
		Timeouts: TimeoutsConfig{
			Ready:    3 * time.Second,
			Response: 500 * time.Millisecond,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Timing returns the firmware defaults overridden by the bus section
func (c Config) Timing() adb.Timing {
	t := adb.DefaultTiming()
	if c.Bus.ToleranceUS != 0 {
		t.Tolerance = c.Bus.ToleranceUS
	}
	if c.Bus.PulseTimeoutUS != 0 {
		t.PulseTimeout = c.Bus.PulseTimeoutUS
	}
	if c.Bus.SampleCapacity != 0 {
		t.SampleCapacity = c.Bus.SampleCapacity
	}
	return t
}

// Validate reports every problem in the configuration at once
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Serial.Device == "" {
		result = multierror.Append(result, fmt.Errorf("serial.device is required"))
	}
	if c.Serial.Baud <= 0 {
		result = multierror.Append(result, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.Serial.ReadTimeoutMS < 0 {
		result = multierror.Append(result, fmt.Errorf("serial.read_timeout_ms must not be negative"))
	}
	if err := c.Timing().Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("bus timing tolerance=%d timeout=%d capacity=%d: %w",
			c.Bus.ToleranceUS, c.Bus.PulseTimeoutUS, c.Bus.SampleCapacity, err))
	}
	if c.Timeouts.Ready <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeouts.ready must be positive"))
	}
	if c.Timeouts.Response <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeouts.response must be positive"))
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log.level %q is not one of trace, debug, info, warn, error", c.Log.Level))
	}

	return result.ErrorOrNil()
}
