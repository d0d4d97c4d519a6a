package main

import (
	"github.com/mklimuk/magnetic/cmd/magnetic/console"
	"github.com/mklimuk/magnetic/tli493d"
	"github.com/urfave/cli/v2"
)

var rangeCmd = cli.Command{
	Name:      "range",
	Usage:     "set the measurement range",
	ArgsUsage: "full|short|extrashort",
	Action: func(c *cli.Context) error {
		r, err := tli493d.ParseRange(c.Args().First())
		if err != nil {
			return console.Exit(2, "%s", console.Red(err))
		}
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.dev.SetMeasurementRange(s.ctx, r); err != nil {
			return console.Exit(1, "could not set range: %s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "range set to %s (%.1f LSB/mT)", console.White(s.dev.Range()), r.Scale())
		return nil
	},
}

var modeCmd = cli.Command{
	Name:      "mode",
	Usage:     "set the access mode",
	ArgsUsage: "lowpower|master|fast",
	Flags: []cli.Flag{
		&cli.UintFlag{
			Name:  "rate",
			Usage: "low power update rate, 0 (fastest) to 7",
		},
	},
	Action: func(c *cli.Context) error {
		mode, err := tli493d.ParseAccessMode(c.Args().First())
		if err != nil {
			return console.Exit(2, "%s", console.Red(err))
		}
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.dev.SetAccessMode(s.ctx, mode); err != nil {
			return console.Exit(1, "could not set access mode: %s", console.Red(err))
		}
		if c.IsSet("rate") {
			if err := s.dev.SetUpdateRate(s.ctx, uint8(min(c.Uint("rate"), 0xFF))); err != nil {
				return console.Exit(1, "could not set update rate: %s", console.Red(err))
			}
		}
		console.PInfof(console.PictoPin, "access mode set to %s", console.White(s.dev.AccessMode()))
		return nil
	},
}

var resetCmd = cli.Command{
	Name:  "reset",
	Usage: "power-cycle the sensor or send the bus recovery sequence",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			answer, err := console.YesOrNo("reset the sensor?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "reset aborted")
				return nil
			}
		}
		s, err := openSensor(c, true)
		if err != nil {
			return err
		}
		defer s.Close()
		console.PInfof(console.PictoPin, "sensor reset, mode %s, range %s", console.White(s.dev.AccessMode()), console.White(s.dev.Range()))
		return nil
	},
}
