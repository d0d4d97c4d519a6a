package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/mklimuk/magnetic/cmd/magnetic/console"
	"github.com/mklimuk/magnetic/stream"
	"github.com/urfave/cli/v2"
)

var streamCmd = cli.Command{
	Name:  "stream",
	Usage: "publish samples to an MQTT broker",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "broker", Usage: "broker URL, e.g. tcp://localhost:1883"},
		&cli.StringFlag{Name: "topic"},
		&cli.DurationFlag{Name: "interval"},
	},
	Action: func(c *cli.Context) error {
		cfg := profile.Stream
		if c.IsSet("broker") {
			cfg.Broker = c.String("broker")
		}
		if c.IsSet("topic") {
			cfg.Topic = c.String("topic")
		}
		interval := time.Duration(cfg.IntervalMs) * time.Millisecond
		if c.IsSet("interval") {
			interval = c.Duration("interval")
		}
		if interval <= 0 {
			return console.Exit(2, "interval must be positive")
		}
		s, err := openSensor(c, false)
		if err != nil {
			return err
		}
		defer s.Close()
		pub, err := stream.NewMQTTPublisher(cfg)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer pub.Close()
		ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt)
		defer stop()
		console.Infof("streaming to %s on %s every %s", console.White(cfg.Broker), console.White(cfg.Topic), interval)
		return stream.NewStreamer(s.dev, pub, cfg.Topic, interval).Run(ctx)
	},
}
