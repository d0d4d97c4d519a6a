package config

const (
	AdapterMCP2221 = "mcp2221"
	AdapterGeneric = "generic"
	AdapterNanoPi  = "nanopi"
	AdapterSim     = "sim"

	UnitRatio      = "ratio"
	UnitLSB        = "lsb"
	UnitMilliTesla = "mt"

	PinMCP2221  = "mcp2221"
	PinHost     = "host"
	PinMCP23017 = "mcp23017"
)

const (
	defaultSpeedKHz     = 100
	defaultPowerCycleMs = 50
	defaultBroker       = "tcp://localhost:1883"
	defaultClientID     = "magnetic"
	defaultTopic        = "magnetic/tli493d"
	defaultIntervalMs   = 100
)

// Normalize fills in defaults. It must be called only after Validate.
// Sensor mode and range stay empty so the device keeps its current settings.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Adapter.Kind == "" {
		cfg.Adapter.Kind = AdapterMCP2221
	}
	if cfg.Adapter.SpeedKHz == 0 {
		cfg.Adapter.SpeedKHz = defaultSpeedKHz
	}

	s := &cfg.Sensor
	if s.Product == "" {
		s.Product = "A0"
	}
	if s.Protocol == "" {
		s.Protocol = "two-byte"
	}
	if s.PowerCycleMs == 0 {
		s.PowerCycleMs = defaultPowerCycleMs
	}

	if cfg.WakeUp != nil && cfg.WakeUp.Unit == "" {
		cfg.WakeUp.Unit = UnitLSB
	}

	st := &cfg.Stream
	if st.Broker == "" {
		st.Broker = defaultBroker
	}
	if st.ClientID == "" {
		st.ClientID = defaultClientID
	}
	if st.Topic == "" {
		st.Topic = defaultTopic
	}
	if st.IntervalMs == 0 {
		st.IntervalMs = defaultIntervalMs
	}
}
