package tli493d

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/magnetic"
	"periph.io/x/conn/v3/gpio"
)

// AccessMode governs whether conversions run continuously or on request.
type AccessMode uint8

const (
	// ModeLowPower runs cyclic measurements at the configured update rate.
	ModeLowPower AccessMode = 0
	// ModeMasterControlled powers the sensor down until a read triggers a conversion.
	ModeMasterControlled AccessMode = 1
	// ModeFast runs conversions continuously.
	ModeFast AccessMode = 3
)

func (m AccessMode) Valid() bool {
	switch m {
	case ModeLowPower, ModeMasterControlled, ModeFast:
		return true
	}
	return false
}

func (m AccessMode) String() string {
	switch m {
	case ModeLowPower:
		return "lowpower"
	case ModeMasterControlled:
		return "master"
	case ModeFast:
		return "fast"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func ParseAccessMode(s string) (AccessMode, error) {
	for _, m := range []AccessMode{ModeLowPower, ModeMasterControlled, ModeFast} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown access mode %q", ErrInvalidArgument, s)
}

// Trigger selects when a conversion starts in master controlled mode.
type Trigger uint8

const (
	TriggerNone Trigger = 0
	// TriggerBeforeMSB starts a conversion on read, before the first MSB is sent.
	TriggerBeforeMSB Trigger = 1
	// TriggerAfterReg5 starts a conversion on read, after register 0x05.
	TriggerAfterReg5 Trigger = 2
)

// ProductType identifies the factory variant and its 7-bit bus address.
type ProductType byte

const (
	ProductA0 ProductType = 0x35
	ProductA1 ProductType = 0x22
	ProductA2 ProductType = 0x78
	ProductA3 ProductType = 0x44
)

var products = [...]ProductType{ProductA0, ProductA1, ProductA2, ProductA3}

// index returns the IICADR field value of the product.
func (p ProductType) index() (byte, bool) {
	for i, v := range products {
		if v == p {
			return byte(i), true
		}
	}
	return 0, false
}

func (p ProductType) Valid() bool {
	_, ok := p.index()
	return ok
}

func (p ProductType) String() string {
	i, ok := p.index()
	if !ok {
		return fmt.Sprintf("product(%#04x)", byte(p))
	}
	return fmt.Sprintf("A%d", i)
}

func ParseProductType(s string) (ProductType, error) {
	for _, p := range products {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown product type %q", ErrInvalidArgument, s)
}

// Protocol is the register read protocol; the value is the PR bit.
type Protocol uint8

const (
	ProtocolTwoByte Protocol = 0
	ProtocolOneByte Protocol = 1
)

func (p Protocol) String() string {
	if p == ProtocolOneByte {
		return "one-byte"
	}
	return "two-byte"
}

type Config struct {
	Mode AccessMode
	// KeepMode makes Begin keep the access mode and trigger found on the
	// device. Mode is used only when the device reports an invalid mode.
	KeepMode        bool
	Product         ProductType
	Protocol        Protocol
	PowerPin        magnetic.PowerPin
	PowerLevel      gpio.Level
	PowerCycleDelay time.Duration
	Logger          *slog.Logger
}

type Option func(*Config)

func WithAccessMode(mode AccessMode) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithDeviceAccessMode keeps the access mode the device is already in.
func WithDeviceAccessMode() Option {
	return func(c *Config) {
		c.KeepMode = true
	}
}

func WithProduct(product ProductType) Option {
	return func(c *Config) {
		c.Product = product
	}
}

func WithProtocol(protocol Protocol) Option {
	return func(c *Config) {
		c.Protocol = protocol
	}
}

// WithPowerPin makes Reset power-cycle the sensor; level is the level that powers it.
func WithPowerPin(pin magnetic.PowerPin, level gpio.Level) Option {
	return func(c *Config) {
		c.PowerPin = pin
		c.PowerLevel = level
	}
}

func WithPowerCycleDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.PowerCycleDelay = delay
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
