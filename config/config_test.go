package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profile = `
adapter:
  kind: generic
  device: /dev/i2c-1
sensor:
  product: A2
  mode: lowpower
  range: short
  update_rate: 3
  power_pin: mcp23017:0x21:B3
wakeup:
  unit: mt
  xh: 10
  xl: -10
  yh: 10
  yl: -10
  zh: 20
  zl: -20
stream:
  broker: tcp://broker:1883
  qos: 1
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "magnetic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, AdapterGeneric, cfg.Adapter.Kind)
	assert.Equal(t, "/dev/i2c-1", cfg.Adapter.Device)
	assert.Equal(t, defaultSpeedKHz, cfg.Adapter.SpeedKHz)
	assert.Equal(t, "A2", cfg.Sensor.Product)
	assert.Equal(t, "two-byte", cfg.Sensor.Protocol)
	require.NotNil(t, cfg.Sensor.UpdateRate)
	assert.Equal(t, uint8(3), *cfg.Sensor.UpdateRate)
	require.NotNil(t, cfg.WakeUp)
	assert.Equal(t, [6]float64{10, -10, 10, -10, 20, -20}, cfg.WakeUp.Values())
	assert.Equal(t, defaultTopic, cfg.Stream.Topic)
	assert.Equal(t, byte(1), cfg.Stream.QoS)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, AdapterMCP2221, cfg.Adapter.Kind)
	assert.Equal(t, "A0", cfg.Sensor.Product)
	assert.Empty(t, cfg.Sensor.Mode)
	assert.Empty(t, cfg.Sensor.Range)
	assert.Equal(t, defaultPowerCycleMs, cfg.Sensor.PowerCycleMs)
	assert.Nil(t, cfg.WakeUp)
	assert.NoError(t, Validate(cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown adapter", "adapter: {kind: serial}"},
		{"unknown product", "sensor: {product: B1}"},
		{"unknown mode", "sensor: {mode: turbo}"},
		{"unknown range", "sensor: {range: huge}"},
		{"unknown protocol", "sensor: {protocol: three-byte}"},
		{"update rate", "sensor: {update_rate: 8}"},
		{"power pin", "sensor: {power_pin: 'mcp2221:7'}"},
		{"wake-up unit", "wakeup: {unit: gauss}"},
		{"wake-up order", "wakeup: {xh: -1, xl: 1}"},
		{"wake-up in extra short range", "sensor: {range: extrashort}\nwakeup: {xh: 1, xl: -1}"},
		{"qos", "stream: {qos: 3}"},
		{"broker scheme", "stream: {broker: localhost:1883}"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.data))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	cfg := &Config{WakeUp: &WakeUpConfig{XH: 1, XL: -1}}
	require.NoError(t, Validate(cfg))
	assert.Equal(t, &Config{WakeUp: &WakeUpConfig{XH: 1, XL: -1}}, cfg)
}

func TestParsePowerPin(t *testing.T) {
	tests := []struct {
		in   string
		want PowerPin
		ok   bool
	}{
		{"mcp2221:2", PowerPin{Kind: PinMCP2221, Number: 2}, true},
		{"host:GPIO17", PowerPin{Kind: PinHost, Name: "GPIO17"}, true},
		{"mcp23017:0x21:b7", PowerPin{Kind: PinMCP23017, Address: 0x21, Port: 'B', Number: 7}, true},
		{"mcp23017:33:A0", PowerPin{Kind: PinMCP23017, Address: 33, Port: 'A'}, true},
		{"mcp2221:4", PowerPin{}, false},
		{"host:", PowerPin{}, false},
		{"mcp23017:0x21:C1", PowerPin{}, false},
		{"mcp23017:0x21:A8", PowerPin{}, false},
		{"mcp23017:0x80:A1", PowerPin{}, false},
		{"gpio17", PowerPin{}, false},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			pin, err := ParsePowerPin(test.in)
			if !test.ok {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, pin)
		})
	}
}
