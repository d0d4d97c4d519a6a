package tli493d

import (
	"context"
	"errors"
	"fmt"

	"github.com/mklimuk/magnetic"
)

// registerCache shadows the device registers. Field writes only touch the
// cache; flush and refresh synchronize it with the bus.
type registerCache struct {
	regs  [registerCount]byte
	dirty [registerCount]bool
}

func (c *registerCache) get(f field) byte {
	bf := fieldMap[f]
	return (c.regs[bf.reg] & bf.mask()) >> bf.offset
}

// set stores value masked to the field width. Sibling bits are preserved.
func (c *registerCache) set(f field, value byte) {
	bf := fieldMap[f]
	m := bf.mask()
	updated := c.regs[bf.reg]&^m | (value<<bf.offset)&m
	if updated == c.regs[bf.reg] {
		return
	}
	c.regs[bf.reg] = updated
	c.dirty[bf.reg] = true
}

func (c *registerCache) flag(f field) bool {
	return c.get(f) != 0
}

func (c *registerCache) setFlag(f field, on bool) {
	if on {
		c.set(f, 1)
		return
	}
	c.set(f, 0)
}

func (c *registerCache) pending() bool {
	for reg, d := range c.dirty {
		if d && writable(reg) {
			return true
		}
	}
	return false
}

// merge loads freshly read registers, keeping values not yet flushed.
func (c *registerCache) merge(first int, data []byte) {
	for i, b := range data {
		reg := first + i
		if c.dirty[reg] {
			continue
		}
		c.regs[reg] = b
	}
}

// transport wraps the bus with the sensor address and read protocol.
type transport struct {
	bus      magnetic.I2CBus
	address  byte
	protocol Protocol
}

// read fills buf with registers starting at first, addressing one register
// (one-byte protocol) or a register pair (two-byte protocol) per transaction.
func (t *transport) read(ctx context.Context, first int, buf []byte) error {
	step := 2
	if t.protocol == ProtocolOneByte {
		step = 1
	}
	for i := 0; i < len(buf); i += step {
		n := min(step, len(buf)-i)
		reg := byte(first + i)
		if err := t.bus.WriteToAddr(ctx, t.address, []byte{reg}); err != nil {
			return classify(fmt.Sprintf("could not set register pointer %#04x", reg), err)
		}
		if err := t.bus.ReadFromAddr(ctx, t.address, buf[i:i+n]); err != nil {
			return classify(fmt.Sprintf("could not read register %#04x", reg), err)
		}
	}
	return nil
}

// refresh reads count registers starting at first into the cache. The cache
// is left untouched when any transaction fails.
func (c *registerCache) refresh(ctx context.Context, t *transport, first, count int) error {
	buf := make([]byte, count)
	if err := t.read(ctx, first, buf); err != nil {
		return err
	}
	c.merge(first, buf)
	return nil
}

// flush writes dirty writable registers, one transaction per contiguous run.
// Registers of a failed run stay dirty.
func (c *registerCache) flush(ctx context.Context, t *transport) error {
	for reg := 0; reg < registerCount; {
		if !c.dirty[reg] || !writable(reg) {
			reg++
			continue
		}
		end := reg + 1
		for end < registerCount && c.dirty[end] && writable(end) {
			end++
		}
		frame := make([]byte, 0, end-reg+1)
		frame = append(frame, byte(reg))
		frame = append(frame, c.regs[reg:end]...)
		if err := t.bus.WriteToAddr(ctx, t.address, frame); err != nil {
			return classify(fmt.Sprintf("could not write registers %#04x-%#04x", reg, end-1), err)
		}
		for i := reg; i < end; i++ {
			c.dirty[i] = false
		}
		reg = end
	}
	return nil
}

// rollback restores prev after a failed flush. Registers that already reached
// the device with a new value are marked dirty so the next flush writes the
// previous value back.
func (c *registerCache) rollback(prev registerCache) {
	for reg := range c.regs {
		if c.regs[reg] != prev.regs[reg] && !c.dirty[reg] {
			prev.dirty[reg] = true
		}
	}
	*c = prev
}

func classify(msg string, err error) error {
	if errors.Is(err, magnetic.ErrShortTransfer) {
		return fmt.Errorf("%w: %s: %w", ErrFrame, msg, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrBus, msg, err)
}
