package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/magnetic"
	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
)

var _ magnetic.I2CBus = &GobotBus{}

// GobotBus exposes an I2C bus of a gobot adaptor. Connections are opened
// lazily, one per device address.
type GobotBus struct {
	mx        sync.Mutex
	connector i2c.Connector
	bus       int
	conns     map[byte]i2c.Connection
}

func NewGobotBus(connector i2c.Connector, bus int) *GobotBus {
	return &GobotBus{connector: connector, bus: bus, conns: map[byte]i2c.Connection{}}
}

// NanoPiBus connects the NanoPi NEO adaptor and returns its bus busNr. The
// returned function finalizes the adaptor.
func NanoPiBus(busNr int) (*GobotBus, func() error, error) {
	npi := nanopi.NewNeoAdaptor()
	if err := npi.I2cBusAdaptor.Connect(); err != nil {
		return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	bus := NewGobotBus(npi, busNr)
	return bus, func() error {
		err := bus.Close()
		if ferr := npi.I2cBusAdaptor.Finalize(); ferr != nil && err == nil {
			err = ferr
		}
		return err
	}, nil
}

func (b *GobotBus) conn(address byte) (i2c.Connection, error) {
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.bus)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %#04x on bus %d: %w", address, b.bus, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to %#04x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("%w: wrote %d of %d bytes to %#04x", magnetic.ErrShortTransfer, n, len(buffer), address)
	}
	return nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from %#04x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("%w: read %d of %d bytes from %#04x", magnetic.ErrShortTransfer, n, len(buffer), address)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close closes every connection opened so far.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("could not close connection to %#04x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	return first
}
