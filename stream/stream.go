// Package stream publishes TLI493D measurements to an MQTT broker.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mklimuk/magnetic/config"
	"github.com/mklimuk/magnetic/tli493d"
)

var ErrTimeout = errors.New("mqtt operation timed out")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	disconnectWait = 250
)

// Payload is the JSON document published for every sample.
type Payload struct {
	X           float64  `json:"x_mt"`
	Y           float64  `json:"y_mt"`
	Z           float64  `json:"z_mt"`
	Norm        float64  `json:"norm_mt"`
	Azimuth     float64  `json:"azimuth"`
	Polar       float64  `json:"polar"`
	Temperature float64  `json:"temp_c"`
	Raw         [4]int16 `json:"raw"`
	Range       string   `json:"range"`
	Time        string   `json:"time"`
}

func NewPayload(s tli493d.Sample, at time.Time) Payload {
	return Payload{
		X:           s.XmT(),
		Y:           s.YmT(),
		Z:           s.ZmT(),
		Norm:        s.Norm(),
		Azimuth:     s.Azimuth(),
		Polar:       s.Polar(),
		Temperature: s.Celsius(),
		Raw:         [4]int16{s.X, s.Y, s.Z, s.Temp},
		Range:       s.Range.String(),
		Time:        at.UTC().Format(time.RFC3339Nano),
	}
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close()
}

// Source is a sensor producing samples; *tli493d.Dev implements it.
type Source interface {
	UpdateData(ctx context.Context) error
	Sample() tli493d.Sample
}

var _ Publisher = &MQTTPublisher{}

type MQTTPublisher struct {
	client   mqtt.Client
	qos      byte
	retained bool
}

// NewMQTTPublisher connects to the broker described by cfg.
func NewMQTTPublisher(cfg config.StreamConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("could not connect to %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", cfg.Broker, err)
	}
	return &MQTTPublisher{client: client, qos: cfg.QoS, retained: cfg.Retained}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(disconnectWait)
}

// Streamer reads the source on every tick and publishes the sample.
type Streamer struct {
	source   Source
	pub      Publisher
	topic    string
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewStreamer(source Source, pub Publisher, topic string, interval time.Duration) *Streamer {
	return &Streamer{
		source:   source,
		pub:      pub,
		topic:    topic,
		interval: interval,
		log:      slog.Default().With("topic", topic),
		now:      time.Now,
	}
}

// Once reads and publishes a single sample.
func (s *Streamer) Once(ctx context.Context) error {
	if err := s.source.UpdateData(ctx); err != nil {
		return fmt.Errorf("could not read sensor: %w", err)
	}
	b, err := json.Marshal(NewPayload(s.source.Sample(), s.now()))
	if err != nil {
		return fmt.Errorf("could not encode sample: %w", err)
	}
	return s.pub.Publish(ctx, s.topic, b)
}

// Run streams until ctx is done. Read and publish failures are logged and
// the next tick is tried.
func (s *Streamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("streaming started", "interval", s.interval)
	for {
		if err := s.Once(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("sample not published", "error", err)
		}
		select {
		case <-ctx.Done():
			s.log.Info("streaming stopped")
			return nil
		case <-ticker.C:
		}
	}
}
