package config

import (
	"fmt"
	"os"
	"time"

	"github.com/itohio/capdaq/pkg/daq"
	"github.com/itohio/capdaq/pkg/fdc1004"
	"gopkg.in/yaml.v3"
)

// Sensor drivers.
const (
	DriverMock = "mock"
	DriverI2C  = "i2c"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig       `yaml:"serial"`
	Sensor      SensorConfig       `yaml:"sensor"`
	Acquisition AcquisitionConfig  `yaml:"acquisition"`
	Protocol    ProtocolConfig     `yaml:"protocol"`
	Mock        fdc1004.MockConfig `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SensorConfig selects and addresses the capacitance sensor. Channel, input
// and rate are fixed for the lifetime of the process.
type SensorConfig struct {
	Driver  string `yaml:"driver"`  // "mock" or "i2c"
	Bus     string `yaml:"bus"`     // periph I2C bus name, e.g. "1"
	Address uint16 `yaml:"address"` // 7-bit I2C address
	Channel int    `yaml:"channel"` // Measurement slot (1-4)
	Input   int    `yaml:"input"`   // Sensor input (CIN1-CIN4)
	RateHz  int    `yaml:"rate_hz"` // Conversion rate: 100, 200 or 400
}

// AcquisitionConfig contains the startup values of the runtime parameters.
type AcquisitionConfig struct {
	Offset      int           `yaml:"offset"`       // CAPDAC value (0-31)
	SampleCount int           `yaml:"sample_count"` // Samples per session
	Period      time.Duration `yaml:"period"`       // Sampling period
}

// ProtocolConfig contains command handshake timing.
type ProtocolConfig struct {
	RetryInterval time.Duration `yaml:"retry_interval"`
	Retries       int           `yaml:"retries"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "COM3", // Default for Windows, should be "/dev/ttyUSB0" on Linux
			BaudRate: 115200,
		},
		Sensor: SensorConfig{
			Driver:  DriverMock,
			Bus:     "1",
			Address: 0x50,
			Channel: 1,
			Input:   1,
			RateHz:  400,
		},
		Acquisition: AcquisitionConfig{
			Offset:      0,
			SampleCount: 4800, // 60 s at 80 Hz
			Period:      12500 * time.Microsecond,
		},
		Protocol: ProtocolConfig{
			RetryInterval: 10 * time.Millisecond,
			Retries:       200,
		},
		Mock: fdc1004.MockConfig{
			CapacitancePF: 10.0,
			NoisePF:       0.01,
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DAQ returns the initial acquisition configuration.
func (c *Config) DAQ() *daq.Config {
	return &daq.Config{
		Offset:      c.Acquisition.Offset,
		SampleCount: c.Acquisition.SampleCount,
		Channel:     c.Sensor.Channel,
		Input:       c.Sensor.Input,
		Rate:        c.Sensor.RateHz,
	}
}

// Timing returns the command handshake timing.
func (c *Config) Timing() daq.Timing {
	return daq.Timing{
		RetryInterval: c.Protocol.RetryInterval,
		Retries:       c.Protocol.Retries,
	}
}

// Validate checks the fixed startup parameters. Offset and sample count are
// not range checked: the command protocol accepts any value for them too.
func (c *Config) Validate() error {
	switch c.Sensor.Driver {
	case DriverMock, DriverI2C:
	default:
		return fmt.Errorf("unknown sensor driver %q", c.Sensor.Driver)
	}
	if c.Sensor.Channel < 1 || c.Sensor.Channel > 4 {
		return fmt.Errorf("invalid sensor channel %d: must be 1-4", c.Sensor.Channel)
	}
	if c.Sensor.Input < 1 || c.Sensor.Input > 4 {
		return fmt.Errorf("invalid sensor input %d: must be 1-4", c.Sensor.Input)
	}
	if c.Acquisition.Period <= 0 {
		return fmt.Errorf("invalid acquisition period %v", c.Acquisition.Period)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if
// missing. Offset and sample count are left alone: zero is a valid value for
// both, and a missing key already keeps its default from Default().
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sensor.Driver == "" {
		c.Sensor.Driver = def.Sensor.Driver
	}
	if c.Sensor.Bus == "" {
		c.Sensor.Bus = def.Sensor.Bus
	}
	if c.Sensor.Address == 0 {
		c.Sensor.Address = def.Sensor.Address
	}
	if c.Sensor.Channel == 0 {
		c.Sensor.Channel = def.Sensor.Channel
	}
	if c.Sensor.Input == 0 {
		c.Sensor.Input = def.Sensor.Input
	}
	if c.Sensor.RateHz == 0 {
		c.Sensor.RateHz = def.Sensor.RateHz
	}

	if c.Acquisition.Period == 0 {
		c.Acquisition.Period = def.Acquisition.Period
	}

	if c.Protocol.RetryInterval == 0 {
		c.Protocol.RetryInterval = def.Protocol.RetryInterval
	}
	if c.Protocol.Retries == 0 {
		c.Protocol.Retries = def.Protocol.Retries
	}

	if c.Mock.CapacitancePF == 0 {
		c.Mock.CapacitancePF = def.Mock.CapacitancePF
	}
}
