package main

import (
	"encoding/hex"
	"math"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/mklimuk/magnetic/cmd/magnetic/console"
	"github.com/mklimuk/magnetic/tli493d"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var readCmd = cli.Command{
	Name:  "read",
	Usage: "read one sample",
	Action: func(c *cli.Context) error {
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.dev.UpdateData(s.ctx); err != nil {
			return console.Exit(1, "could not read sensor: %s", console.Red(err))
		}
		printSample(s.dev)
		return nil
	},
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "read samples periodically until interrupted",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "interval",
			Value: 500 * time.Millisecond,
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "stop after count samples, 0 reads forever",
		},
	},
	Action: func(c *cli.Context) error {
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt)
		defer stop()
		ticker := time.NewTicker(c.Duration("interval"))
		defer ticker.Stop()
		for n := 1; ; n++ {
			if err := s.dev.UpdateData(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				console.Warnf("sample %d: %s", n, err)
			} else {
				printSample(s.dev)
			}
			if count := c.Int("count"); count > 0 && n >= count {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

func printSample(dev *tli493d.Dev) {
	console.PInfof(console.PictoMagnet, "x %s mT  y %s mT  z %s mT  |B| %s mT",
		console.White(format(dev.X())), console.White(format(dev.Y())), console.White(format(dev.Z())), console.Bold(format(dev.Norm())))
	console.PInfof(console.PictoCompass, "azimuth %s°  polar %s°",
		console.White(format(degrees(dev.Azimuth()))), console.White(format(degrees(dev.Polar()))))
	console.PInfof(console.PictoThermometer, "temperature %s °C", console.White(format(dev.Temperature())))
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

var diagCmd = cli.Command{
	Name:  "diag",
	Usage: "dump measurement and diagnosis registers",
	Action: func(c *cli.Context) error {
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.dev.UpdateData(s.ctx); err != nil {
			return console.Exit(1, "could not read sensor: %s", console.Red(err))
		}
		return printDiagnosis(s.dev)
	},
}

type diagnosis struct {
	Registers string         `yaml:"registers"`
	Range     string         `yaml:"range"`
	Mode      string         `yaml:"mode"`
	Status    tli493d.Status `yaml:"status"`
}

func printDiagnosis(dev *tli493d.Dev) error {
	regs := dev.Diagnosis()
	console.Printf("%s\n", hex.Dump(regs[:]))
	enc := yaml.NewEncoder(console.Writer())
	defer func() { _ = enc.Close() }()
	err := enc.Encode(diagnosis{
		Registers: hex.EncodeToString(regs[:]),
		Range:     dev.Range().String(),
		Mode:      dev.AccessMode().String(),
		Status:    dev.Status(),
	})
	if err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}
