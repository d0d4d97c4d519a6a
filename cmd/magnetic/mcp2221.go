package main

import (
	"strconv"

	"github.com/mklimuk/magnetic/adapter"
	"github.com/mklimuk/magnetic/cmd/magnetic/console"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/gpio"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "USB to I2C bridge tooling",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221GPIOCmd,
	},
}

func bridge(c *cli.Context) (*adapter.MCP2221, error) {
	if profile.Adapter.Device == "" {
		return adapter.NewMCP2221(), nil
	}
	id, err := strconv.Atoi(profile.Adapter.Device)
	if err != nil {
		return nil, console.Exit(2, "invalid MCP2221 index %q", profile.Adapter.Device)
	}
	return adapter.NewMCP2221(id), nil
}

func encode(v interface{}) error {
	enc := yaml.NewEncoder(console.Writer())
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		a, err := bridge(c)
		if err != nil {
			return err
		}
		status, err := a.Status(console.SetVerbose(c.Context, c.Bool("verbose")))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the pending transfer and free the bus",
	Action: func(c *cli.Context) error {
		a, err := bridge(c)
		if err != nil {
			return err
		}
		status, err := a.ReleaseBus(console.SetVerbose(c.Context, c.Bool("verbose")))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "show GP pin setup and values",
	Subcommands: cli.Commands{
		&mcp2221GPIOSetCmd,
	},
	Action: func(c *cli.Context) error {
		a, err := bridge(c)
		if err != nil {
			return err
		}
		ctx := console.SetVerbose(c.Context, c.Bool("verbose"))
		params, err := a.GetGPIOParameters(ctx)
		if err != nil {
			return console.Exit(1, "could not read GP parameters: %s", console.Red(err))
		}
		values, err := a.ReadGPIO(ctx)
		if err != nil {
			return console.Exit(1, "could not read GP values: %s", console.Red(err))
		}
		return encode(struct {
			Parameters adapter.MCP2221GPIOParameters `yaml:"parameters"`
			Values     adapter.MCP2221GPIOValues     `yaml:"values"`
		}{params, values})
	},
}

var mcp2221GPIOSetCmd = cli.Command{
	Name:      "set",
	Usage:     "drive a GP pin configured for GPIO operation",
	ArgsUsage: "pin 0|1",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(2, "expected pin and level")
		}
		pin, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return console.Exit(2, "invalid pin %q", c.Args().Get(0))
		}
		a, err := bridge(c)
		if err != nil {
			return err
		}
		level := gpio.Level(c.Args().Get(1) == "1")
		if err := a.SetGPIO(console.SetVerbose(c.Context, c.Bool("verbose")), pin, level); err != nil {
			return console.Exit(1, "could not set GP%d: %s", pin, console.Red(err))
		}
		console.PInfof(console.PictoPin, "GP%d set to %s", pin, console.White(level))
		return nil
	},
}
