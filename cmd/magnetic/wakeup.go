package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mklimuk/magnetic/cmd/magnetic/console"
	"github.com/mklimuk/magnetic/config"
	"github.com/mklimuk/magnetic/tli493d"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var wakeUpCmd = cli.Command{
	Name:  "wakeup",
	Usage: "wake-up window and interrupt",
	Subcommands: cli.Commands{
		&wakeUpSetCmd,
		&wakeUpEnableCmd,
		&wakeUpDisableCmd,
		&wakeUpStatusCmd,
	},
}

var wakeUpSetCmd = cli.Command{
	Name:      "set",
	Usage:     "write wake-up thresholds",
	ArgsUsage: "xh xl yh yl zh zl",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "unit",
			Value: config.UnitLSB,
			Usage: "threshold unit: ratio, lsb or mt",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 6 {
			return console.Exit(2, "expected 6 thresholds, got %d", c.NArg())
		}
		var w config.WakeUpConfig
		w.Unit = c.String("unit")
		targets := [6]*float64{&w.XH, &w.XL, &w.YH, &w.YL, &w.ZH, &w.ZL}
		for i, arg := range c.Args().Slice() {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return console.Exit(2, "invalid threshold %q", arg)
			}
			*targets[i] = v
		}
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := setThresholds(s.ctx, s.dev, w); err != nil {
			return err
		}
		return printWakeUp(s.ctx, s.dev)
	},
}

// setThresholds writes w. A window too wide for the active range is written
// anyway, so it only warns.
func setThresholds(ctx context.Context, dev *tli493d.Dev, w config.WakeUpConfig) error {
	var err error
	switch w.Unit {
	case config.UnitRatio:
		err = dev.SetWakeUpThreshold(ctx, w.XH, w.XL, w.YH, w.YL, w.ZH, w.ZL)
	case config.UnitMilliTesla:
		err = dev.SetWakeUpThresholdMT(ctx, w.XH, w.XL, w.YH, w.YL, w.ZH, w.ZL)
	case config.UnitLSB, "":
		v := w.Values()
		var codes [6]int
		for i, f := range v {
			if f != math.Trunc(f) {
				return console.Exit(2, "lsb threshold %v is not an integer", f)
			}
			codes[i] = int(f)
		}
		err = dev.SetWakeUpThresholdLSB(ctx, codes[0], codes[1], codes[2], codes[3], codes[4], codes[5])
	default:
		return console.Exit(2, "unknown unit %q", w.Unit)
	}
	switch {
	case errors.Is(err, tli493d.ErrWindowTooWide):
		console.Warnf("%s", err)
	case err != nil:
		return console.Exit(1, "could not set thresholds: %s", console.Red(err))
	}
	return nil
}

var wakeUpEnableCmd = cli.Command{
	Name:  "enable",
	Usage: "enable wake-up, writing the profile thresholds first when present",
	Action: func(c *cli.Context) error {
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		if profile.WakeUp != nil {
			if err := setThresholds(s.ctx, s.dev, *profile.WakeUp); err != nil {
				return err
			}
		}
		if err := s.dev.EnableWakeUp(s.ctx); err != nil {
			return console.Exit(1, "could not enable wake-up: %s", console.Red(err))
		}
		return printWakeUp(s.ctx, s.dev)
	},
}

var wakeUpDisableCmd = cli.Command{
	Name: "disable",
	Action: func(c *cli.Context) error {
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.dev.DisableWakeUp(s.ctx); err != nil {
			return console.Exit(1, "could not disable wake-up: %s", console.Red(err))
		}
		return printWakeUp(s.ctx, s.dev)
	},
}

var wakeUpStatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		return printWakeUp(s.ctx, s.dev)
	},
}

type wakeUpStatus struct {
	Enabled bool           `yaml:"enabled"`
	Active  bool           `yaml:"active"`
	Range   string         `yaml:"range"`
	LSB     tli493d.Window `yaml:"lsb"`
	MT      [6]string      `yaml:"mt,flow"`
}

func printWakeUp(ctx context.Context, dev *tli493d.Dev) error {
	active, err := dev.WakeUpActive(ctx)
	if err != nil {
		return console.Exit(1, "could not read wake-up state: %s", console.Red(err))
	}
	w := dev.WakeUpThresholds()
	st := wakeUpStatus{
		Enabled: dev.WakeUpEnabled(),
		Active:  active,
		Range:   dev.Range().String(),
		LSB:     w,
	}
	for i, v := range w.MilliTesla(dev.Range()) {
		st.MT[i] = fmt.Sprintf("%.2f", v)
	}
	enc := yaml.NewEncoder(console.Writer())
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(st); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}
