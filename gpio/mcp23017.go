package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/magnetic"
	"periph.io/x/conn/v3/gpio"
)

type registry int

const DefaultMCP23017Address = 0x21

const (
	IODIR registry = iota
	GPPU
	GPIO
	OLAT
)

// Port is one of the two 8-bit I/O ports.
type Port int

const (
	PortA Port = iota
	PortB
)

func (p Port) String() string {
	if p == PortB {
		return "B"
	}
	return "A"
}

// BankAddr maps registries per IOCON.BANK setting and port.
var BankAddr = [2][2]map[registry]byte{
	// BANK=0, registers of both ports interleaved
	{
		{IODIR: 0x00, GPPU: 0x0C, GPIO: 0x12, OLAT: 0x14},
		{IODIR: 0x01, GPPU: 0x0D, GPIO: 0x13, OLAT: 0x15},
	},
	// BANK=1, registers grouped per port
	{
		{IODIR: 0x00, GPPU: 0x06, GPIO: 0x09, OLAT: 0x0A},
		{IODIR: 0x10, GPPU: 0x16, GPIO: 0x19, OLAT: 0x1A},
	},
}

// MCP23017 is an I2C GPIO expander. Its outputs can switch the magnetic
// sensor supply.
type MCP23017 struct {
	mx         sync.Mutex
	transport  magnetic.I2CBus
	bank       int
	address    byte
	retryLimit int
}

func NewMCP23017(bus magnetic.I2CBus, address byte) *MCP23017 {
	return &MCP23017{retryLimit: 2, transport: bus, address: address}
}

func (m *MCP23017) reg(port Port, r registry) byte {
	return BankAddr[m.bank][port][r]
}

// retry runs op until it succeeds, fails with something other than a busy
// bus or the retry limit is reached. The bus is released between attempts.
func (m *MCP23017) retry(ctx context.Context, what string, op func() error) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, magnetic.ErrBusBusy) {
			return fmt.Errorf("could not %s: %w", what, err)
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("could not %s (retry limit reached): %w", what, err)
}

func (m *MCP23017) writeRegistry(ctx context.Context, addr byte, value byte) error {
	return m.transport.WriteToAddr(ctx, m.address, []byte{addr, value})
}

func (m *MCP23017) readRegistry(ctx context.Context, addr byte) (byte, error) {
	err := m.transport.WriteToAddr(ctx, m.address, []byte{addr})
	if err != nil {
		return 0x00, fmt.Errorf("could not set I/O registry address: %w", err)
	}
	buf := make([]byte, 1)
	err = m.transport.ReadFromAddr(ctx, m.address, buf)
	if err != nil {
		return 0x00, fmt.Errorf("could not read gpio data: %w", err)
	}
	return buf[0], nil
}

// SetDirection sets IODIR of port; a set bit makes the pin an input.
func (m *MCP23017) SetDirection(ctx context.Context, port Port, inout byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.retry(ctx, "initialize gpio "+port.String()+" set", func() error {
		return m.writeRegistry(ctx, m.reg(port, IODIR), inout)
	})
}

// PullUp enables pull up resistors on port.
func (m *MCP23017) PullUp(ctx context.Context, port Port, settings byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.retry(ctx, "set pull-up on gpio "+port.String()+" set", func() error {
		return m.writeRegistry(ctx, m.reg(port, GPPU), settings)
	})
}

// Read reads the pin levels of port.
func (m *MCP23017) Read(ctx context.Context, port Port) (byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	var res byte
	err := m.retry(ctx, "read gpio "+port.String()+" set", func() error {
		var err error
		res, err = m.readRegistry(ctx, m.reg(port, GPIO))
		return err
	})
	return res, err
}

// Set drives pin n of port to level, leaving the other output latches as they are.
func (m *MCP23017) Set(ctx context.Context, port Port, n int, level gpio.Level) error {
	if n < 0 || n > 7 {
		return fmt.Errorf("invalid MCP23017 pin %s%d", port, n)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.retry(ctx, fmt.Sprintf("set gpio %s%d", port, n), func() error {
		latch, err := m.readRegistry(ctx, m.reg(port, OLAT))
		if err != nil {
			return err
		}
		if level {
			latch |= 1 << n
		} else {
			latch &^= 1 << n
		}
		if err := m.writeRegistry(ctx, m.reg(port, OLAT), latch); err != nil {
			return err
		}
		dir, err := m.readRegistry(ctx, m.reg(port, IODIR))
		if err != nil {
			return err
		}
		if dir&(1<<n) == 0 {
			return nil
		}
		return m.writeRegistry(ctx, m.reg(port, IODIR), dir&^(1<<n))
	})
}

// Pin returns pin n of port as a power pin.
func (m *MCP23017) Pin(port Port, n int) *MCP23017Pin {
	return &MCP23017Pin{dev: m, port: port, n: n}
}

type MCP23017Pin struct {
	dev  *MCP23017
	port Port
	n    int
}

func (p *MCP23017Pin) Out(l gpio.Level) error {
	return p.dev.Set(context.Background(), p.port, p.n, l)
}

func (p *MCP23017Pin) String() string {
	return fmt.Sprintf("MCP23017(%#04x)/GP%s%d", p.dev.address, p.port, p.n)
}
