package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mklimuk/magnetic/tli493d"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
// Empty values are accepted and filled in by Normalize.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: empty config", ErrInvalid)
	}
	switch cfg.Adapter.Kind {
	case "", AdapterMCP2221, AdapterGeneric, AdapterNanoPi, AdapterSim:
	default:
		return fmt.Errorf("%w: adapter: unknown kind %q", ErrInvalid, cfg.Adapter.Kind)
	}
	if cfg.Adapter.SpeedKHz < 0 || cfg.Adapter.SpeedKHz > 1000 {
		return fmt.Errorf("%w: adapter: speed_khz %d outside [0, 1000]", ErrInvalid, cfg.Adapter.SpeedKHz)
	}

	s := cfg.Sensor
	if s.Product != "" {
		if _, err := tli493d.ParseProductType(s.Product); err != nil {
			return fmt.Errorf("%w: sensor: %w", ErrInvalid, err)
		}
	}
	if s.Mode != "" {
		if _, err := tli493d.ParseAccessMode(s.Mode); err != nil {
			return fmt.Errorf("%w: sensor: %w", ErrInvalid, err)
		}
	}
	if s.Range != "" {
		if _, err := tli493d.ParseRange(s.Range); err != nil {
			return fmt.Errorf("%w: sensor: %w", ErrInvalid, err)
		}
	}
	switch s.Protocol {
	case "", "one-byte", "two-byte":
	default:
		return fmt.Errorf("%w: sensor: unknown protocol %q", ErrInvalid, s.Protocol)
	}
	if s.UpdateRate != nil && *s.UpdateRate > 7 {
		return fmt.Errorf("%w: sensor: update_rate %d outside [0, 7]", ErrInvalid, *s.UpdateRate)
	}
	if s.PowerCycleMs < 0 {
		return fmt.Errorf("%w: sensor: negative power_cycle_ms", ErrInvalid)
	}
	if s.PowerPin != "" {
		if _, err := ParsePowerPin(s.PowerPin); err != nil {
			return err
		}
	}

	if w := cfg.WakeUp; w != nil {
		switch w.Unit {
		case "", UnitRatio, UnitLSB, UnitMilliTesla:
		default:
			return fmt.Errorf("%w: wakeup: unknown unit %q", ErrInvalid, w.Unit)
		}
		v := w.Values()
		for i := 0; i < len(v); i += 2 {
			if v[i] < v[i+1] {
				return fmt.Errorf("%w: wakeup: upper threshold %v below lower %v", ErrInvalid, v[i], v[i+1])
			}
		}
		if s.Range == tli493d.RangeExtraShort.String() {
			return fmt.Errorf("%w: wakeup cannot be used in the extra short range", ErrInvalid)
		}
	}

	st := cfg.Stream
	if st.QoS > 2 {
		return fmt.Errorf("%w: stream: qos %d outside [0, 2]", ErrInvalid, st.QoS)
	}
	if st.IntervalMs < 0 {
		return fmt.Errorf("%w: stream: negative interval_ms", ErrInvalid)
	}
	if st.Broker != "" && !strings.Contains(st.Broker, "://") {
		return fmt.Errorf("%w: stream: broker %q needs a scheme (tcp://, ssl://, ws://)", ErrInvalid, st.Broker)
	}
	return nil
}

// PowerPin is a parsed power_pin value.
type PowerPin struct {
	Kind    string
	Name    string
	Address byte
	Port    byte
	Number  int
}

// ParsePowerPin parses "mcp2221:<0-3>", "host:<name>" or "mcp23017:<addr>:<A|B><0-7>".
func ParsePowerPin(s string) (PowerPin, error) {
	parts := strings.Split(s, ":")
	bad := fmt.Errorf("%w: power_pin %q", ErrInvalid, s)
	switch parts[0] {
	case PinMCP2221:
		if len(parts) != 2 {
			return PowerPin{}, bad
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 || n > 3 {
			return PowerPin{}, bad
		}
		return PowerPin{Kind: PinMCP2221, Number: n}, nil
	case PinHost:
		if len(parts) != 2 || parts[1] == "" {
			return PowerPin{}, bad
		}
		return PowerPin{Kind: PinHost, Name: parts[1]}, nil
	case PinMCP23017:
		if len(parts) != 3 || len(parts[2]) != 2 {
			return PowerPin{}, bad
		}
		addr, err := strconv.ParseUint(parts[1], 0, 7)
		if err != nil {
			return PowerPin{}, bad
		}
		port := strings.ToUpper(parts[2][:1])
		if port != "A" && port != "B" {
			return PowerPin{}, bad
		}
		n := int(parts[2][1] - '0')
		if n < 0 || n > 7 {
			return PowerPin{}, bad
		}
		return PowerPin{Kind: PinMCP23017, Address: byte(addr), Port: port[0], Number: n}, nil
	}
	return PowerPin{}, bad
}
