package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/mklimuk/magnetic/cmd/magnetic/console"
	"github.com/mklimuk/magnetic/config"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"
)

// set by the dev tool at build time
var version string
var commit string
var date string

// profile is loaded before any command runs; flags override it.
var profile *config.Config

func main() {
	os.Exit(run())
}

// buildVersion falls back to the module and VCS stamps of plain go builds.
func buildVersion() string {
	if version != "" {
		return fmt.Sprintf("%s-%s-%s", version, date, commit)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}
	v := info.Main.Version
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			v += "-" + s.Value[:7]
		}
	}
	return v
}

func run() int {
	app := cli.NewApp()
	app.Name = "magnetic"
	app.EnableBashCompletion = true
	app.Version = buildVersion()
	app.Usage = "TLI493D 3D magnetic sensor cli"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging and adapter traffic dumps",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML profile",
			EnvVars: []string{"MAGNETIC_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter: mcp2221, generic, nanopi or sim",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "bus name (generic), bus number (nanopi) or adapter index (mcp2221)",
		},
		&cli.StringFlag{
			Name:    "product",
			Aliases: []string{"p"},
			Usage:   "sensor product type: A0, A1, A2 or A3",
		},
	}
	app.Before = func(c *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if c.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return loadProfile(c)
	}
	app.Commands = cli.Commands{
		&readCmd,
		&watchCmd,
		&streamCmd,
		&diagCmd,
		&wakeUpCmd,
		&rangeCmd,
		&modeCmd,
		&resetCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}

func loadProfile(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return console.Exit(2, "%s", console.Red(err))
		}
	}
	if c.IsSet("adapter") {
		cfg.Adapter.Kind = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Adapter.Device = c.String("device")
	}
	if c.IsSet("product") {
		cfg.Sensor.Product = c.String("product")
	}
	if err := config.Validate(cfg); err != nil {
		return console.Exit(2, "%s", console.Red(err))
	}
	profile = cfg
	return nil
}
