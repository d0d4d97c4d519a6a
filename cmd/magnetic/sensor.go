package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mklimuk/magnetic"
	"github.com/mklimuk/magnetic/adapter"
	"github.com/mklimuk/magnetic/cmd/magnetic/console"
	"github.com/mklimuk/magnetic/config"
	expander "github.com/mklimuk/magnetic/gpio"
	"github.com/mklimuk/magnetic/i2c"
	"github.com/mklimuk/magnetic/tli493d"
	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// session is an initialized sensor with the bus it was opened on.
type session struct {
	ctx    context.Context
	dev    *tli493d.Dev
	bus    magnetic.I2CBus
	bridge *adapter.MCP2221
	closer func() error
}

func (s *session) Close() {
	if s.closer == nil {
		return
	}
	if err := s.closer(); err != nil {
		slog.Warn("could not close bus", "error", err)
	}
}

// openBus opens the adapter; product selects the address of a simulated sensor.
func (s *session) openBus(cfg config.AdapterConfig, product tli493d.ProductType) error {
	speed := physic.Frequency(cfg.SpeedKHz) * physic.KiloHertz
	switch cfg.Kind {
	case config.AdapterMCP2221:
		var ids []int
		if cfg.Device != "" {
			id, err := strconv.Atoi(cfg.Device)
			if err != nil {
				return fmt.Errorf("invalid MCP2221 index %q", cfg.Device)
			}
			ids = append(ids, id)
		}
		s.bridge = adapter.NewMCP2221(ids...)
		if err := s.bridge.Init(s.ctx, speed); err != nil {
			return fmt.Errorf("could not initialize MCP2221: %w", err)
		}
		s.bus = s.bridge
	case config.AdapterGeneric:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return err
		}
		if err := bus.SetSpeed(speed); err != nil {
			slog.Warn("bus speed unchanged", "bus", bus.String(), "error", err)
		}
		s.bus, s.closer = bus, bus.Close
	case config.AdapterNanoPi:
		nr := 0
		if cfg.Device != "" {
			var err error
			if nr, err = strconv.Atoi(cfg.Device); err != nil {
				return fmt.Errorf("invalid NanoPi bus number %q", cfg.Device)
			}
		}
		bus, finalize, err := adapter.NanoPiBus(nr)
		if err != nil {
			return err
		}
		s.bus, s.closer = bus, finalize
	case config.AdapterSim:
		sim := tli493d.NewSimulator(product)
		sim.SetMeasurement(385, -154, 770, 1180)
		s.bus = sim
	default:
		return fmt.Errorf("unknown adapter %q", cfg.Kind)
	}
	return nil
}

func (s *session) powerPin(spec string) (magnetic.PowerPin, error) {
	pin, err := config.ParsePowerPin(spec)
	if err != nil {
		return nil, err
	}
	switch pin.Kind {
	case config.PinMCP2221:
		bridge := s.bridge
		if bridge == nil {
			bridge = adapter.NewMCP2221()
		}
		return bridge.Pin(pin.Number), nil
	case config.PinHost:
		return i2c.Pin(pin.Name)
	case config.PinMCP23017:
		port := expander.PortA
		if pin.Port == 'B' {
			port = expander.PortB
		}
		return expander.NewMCP23017(s.bus, pin.Address).Pin(port, pin.Number), nil
	}
	return nil, fmt.Errorf("unsupported power pin %q", spec)
}

func sensorOptions(cfg config.SensorConfig) ([]tli493d.Option, error) {
	product, err := tli493d.ParseProductType(cfg.Product)
	if err != nil {
		return nil, err
	}
	protocol := tli493d.ProtocolTwoByte
	if cfg.Protocol == tli493d.ProtocolOneByte.String() {
		protocol = tli493d.ProtocolOneByte
	}
	opts := []tli493d.Option{
		tli493d.WithProduct(product),
		tli493d.WithProtocol(protocol),
		tli493d.WithPowerCycleDelay(time.Duration(cfg.PowerCycleMs) * time.Millisecond),
		tli493d.WithLogger(slog.Default()),
	}
	// without a mode in the profile the one set by an earlier command stays
	if cfg.Mode == "" {
		return append(opts, tli493d.WithDeviceAccessMode()), nil
	}
	mode, err := tli493d.ParseAccessMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	return append(opts, tli493d.WithAccessMode(mode)), nil
}

// applyProfile sets what the profile names on top of the device state.
func applyProfile(ctx context.Context, dev *tli493d.Dev, cfg config.SensorConfig) error {
	if cfg.Range != "" {
		r, err := tli493d.ParseRange(cfg.Range)
		if err != nil {
			return err
		}
		if r != dev.Range() {
			if err := dev.SetMeasurementRange(ctx, r); err != nil {
				return err
			}
		}
	}
	if cfg.UpdateRate != nil {
		if err := dev.SetUpdateRate(ctx, *cfg.UpdateRate); err != nil {
			return err
		}
	}
	if cfg.Temperature != nil {
		if *cfg.Temperature {
			return dev.EnableTemp(ctx)
		}
		return dev.DisableTemp(ctx)
	}
	return nil
}

// openSensor opens the configured bus and initializes the sensor on it.
func openSensor(c *cli.Context, reset bool) (*session, error) {
	ctx := console.SetVerbose(c.Context, c.Bool("verbose"))
	s := &session{ctx: ctx}
	product, err := tli493d.ParseProductType(profile.Sensor.Product)
	if err != nil {
		return nil, console.Exit(2, "%s", console.Red(err))
	}
	if err := s.openBus(profile.Adapter, product); err != nil {
		return nil, console.Exit(1, "could not open bus: %s", console.Red(err))
	}
	if err := s.start(profile.Sensor, reset); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// start initializes the sensor on the open bus and applies cfg.
func (s *session) start(cfg config.SensorConfig, reset bool) error {
	opts, err := sensorOptions(cfg)
	if err != nil {
		return console.Exit(2, "%s", console.Red(err))
	}
	if cfg.PowerPin != "" {
		pin, err := s.powerPin(cfg.PowerPin)
		if err != nil {
			return console.Exit(2, "could not set up power pin: %s", console.Red(err))
		}
		level := gpio.High
		if cfg.PowerActiveLow {
			level = gpio.Low
		}
		opts = append(opts, tli493d.WithPowerPin(pin, level))
	}
	s.dev = tli493d.New(s.bus, opts...)
	if err := s.dev.Begin(s.ctx, reset); err != nil {
		return console.Exit(1, "could not initialize sensor: %s", console.Red(err))
	}
	if err := applyProfile(s.ctx, s.dev, cfg); err != nil {
		return console.Exit(1, "could not configure sensor: %s", console.Red(err))
	}
	return nil
}
