package config

import (
	"os"
	"testing"
	"time"

	"github.com/itohio/capdaq/pkg/daq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	return tmpfile.Name()
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "COM3", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, DriverMock, cfg.Sensor.Driver)
	assert.Equal(t, uint16(0x50), cfg.Sensor.Address)
	assert.Equal(t, 1, cfg.Sensor.Channel)
	assert.Equal(t, 1, cfg.Sensor.Input)
	assert.Equal(t, 400, cfg.Sensor.RateHz)
	assert.Equal(t, 0, cfg.Acquisition.Offset)
	assert.Equal(t, 4800, cfg.Acquisition.SampleCount)
	assert.Equal(t, daq.DefaultPeriod, cfg.Acquisition.Period)
	assert.Equal(t, daq.DefaultTiming(), cfg.Timing())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "COM3", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	name := writeTemp(t, `
serial:
  port: "/dev/ttyUSB0"
  baud_rate: 230400

sensor:
  driver: i2c
  bus: "0"
  channel: 2
  input: 3
  rate_hz: 200

acquisition:
  offset: 12
  sample_count: 12000
  period: 5ms

protocol:
  retry_interval: 20ms
  retries: 50

mock:
  capacitance_pf: 42.5
  noise_pf: 0.1
`)

	cfg, err := Load(name)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 230400, cfg.Serial.BaudRate)
	assert.Equal(t, DriverI2C, cfg.Sensor.Driver)
	assert.Equal(t, "0", cfg.Sensor.Bus)
	assert.Equal(t, 2, cfg.Sensor.Channel)
	assert.Equal(t, 3, cfg.Sensor.Input)
	assert.Equal(t, 200, cfg.Sensor.RateHz)
	assert.Equal(t, 12, cfg.Acquisition.Offset)
	assert.Equal(t, 12000, cfg.Acquisition.SampleCount)
	assert.Equal(t, 5*time.Millisecond, cfg.Acquisition.Period)
	assert.Equal(t, daq.Timing{RetryInterval: 20 * time.Millisecond, Retries: 50}, cfg.Timing())
	assert.Equal(t, 42.5, cfg.Mock.CapacitancePF)
	assert.Equal(t, 0.1, cfg.Mock.NoisePF)

	assert.Equal(t, &daq.Config{Offset: 12, SampleCount: 12000, Channel: 2, Input: 3, Rate: 200}, cfg.DAQ())
}

func TestLoad_InvalidYAML(t *testing.T) {
	name := writeTemp(t, "invalid: yaml: content: [")

	cfg, err := Load(name)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", "sensor:\n  driver: spi\n"},
		{"channel out of range", "sensor:\n  channel: 5\n"},
		{"input out of range", "sensor:\n  input: -1\n"},
		{"negative period", "acquisition:\n  period: -1ms\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, tt.content))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_PartialYAML(t *testing.T) {
	name := writeTemp(t, `
serial:
  port: "/dev/ttyACM0"
`)

	cfg, err := Load(name)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, DriverMock, cfg.Sensor.Driver)
	assert.Equal(t, 4800, cfg.Acquisition.SampleCount)
	assert.Equal(t, 200, cfg.Protocol.Retries)
}

func TestLoad_ZeroSampleCount(t *testing.T) {
	name := writeTemp(t, `
acquisition:
  offset: 0
  sample_count: 0
`)

	cfg, err := Load(name)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Acquisition.SampleCount, "an explicit zero must not be replaced")
	assert.Equal(t, 0, cfg.DAQ().SampleCount)
	assert.Equal(t, 12500*time.Microsecond, cfg.Acquisition.Period)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Acquisition.Offset = 5
	cfg.Acquisition.Period = 20 * time.Millisecond

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	// Load it back and verify
	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, 5, loaded.Acquisition.Offset)
	assert.Equal(t, 20*time.Millisecond, loaded.Acquisition.Period)
}
