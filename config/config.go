// Package config holds the YAML profile of the magnetic command: which
// adapter reaches the sensor, how the sensor is set up and where
// measurements are streamed.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Adapter AdapterConfig `yaml:"adapter"`
	Sensor  SensorConfig  `yaml:"sensor"`
	WakeUp  *WakeUpConfig `yaml:"wakeup"`
	Stream  StreamConfig  `yaml:"stream"`
}

// ---- ADAPTER ----

type AdapterConfig struct {
	// Kind is one of mcp2221, generic, nanopi or sim.
	Kind string `yaml:"kind"`
	// Device is the host bus name (generic), the bus number (nanopi) or the
	// enumeration index (mcp2221).
	Device   string `yaml:"device"`
	SpeedKHz int    `yaml:"speed_khz"`
}

// ---- SENSOR ----

type SensorConfig struct {
	Product  string `yaml:"product"`
	Mode     string `yaml:"mode"`
	Protocol string `yaml:"protocol"`
	Range    string `yaml:"range"`
	// UpdateRate applies in low power mode, 0 is the fastest.
	UpdateRate  *uint8 `yaml:"update_rate"`
	Temperature *bool  `yaml:"temperature"`
	// PowerPin is "mcp2221:<0-3>", "host:<name>" or "mcp23017:<addr>:<A|B><0-7>".
	PowerPin       string `yaml:"power_pin"`
	PowerActiveLow bool   `yaml:"power_active_low"`
	PowerCycleMs   int    `yaml:"power_cycle_ms"`
}

// ---- WAKE-UP ----

type WakeUpConfig struct {
	// Unit is ratio, lsb or mt.
	Unit string  `yaml:"unit"`
	XH   float64 `yaml:"xh"`
	XL   float64 `yaml:"xl"`
	YH   float64 `yaml:"yh"`
	YL   float64 `yaml:"yl"`
	ZH   float64 `yaml:"zh"`
	ZL   float64 `yaml:"zl"`
}

func (w WakeUpConfig) Values() [6]float64 {
	return [6]float64{w.XH, w.XL, w.YH, w.YL, w.ZH, w.ZL}
}

// ---- STREAM ----

type StreamConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Topic      string `yaml:"topic"`
	QoS        byte   `yaml:"qos"`
	Retained   bool   `yaml:"retained"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	IntervalMs int    `yaml:"interval_ms"`
}

// Default returns a normalized profile for a sensor behind an MCP2221.
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}

// Load reads, validates and normalizes the profile at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}
