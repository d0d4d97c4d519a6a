package tli493d

import "math/bits"

type regMask struct {
	reg  byte
	mask byte
}

// parityDomain lists the register bits covered by one parity bit, the parity
// bit included.
type parityDomain struct {
	name   string
	parity field
	bits   []regMask
}

var fuseParity = parityDomain{
	name:   "fuse",
	parity: fieldFuseParity,
	bits: []regMask{
		{regMOD1, 0xFF},
		{regMOD2, fieldMap[fieldUpdateRate].mask()},
	},
}

var configParity = parityDomain{
	name:   "configuration",
	parity: fieldConfigParity,
	bits: []regMask{
		{regXL, 0xFF},
		{regXH, 0xFF},
		{regYL, 0xFF},
		{regYH, 0xFF},
		{regZL, 0xFF},
		{regZH, 0xFF},
		{regWU, ^fieldMap[fieldWakeUpActive].mask()},
		{regTMode, 0xFF},
		{regTPhase, 0xFF},
		{regConfig, 0xFF},
	},
}

// ones counts the set bits of the domain, optionally leaving the parity bit out.
func (c *registerCache) ones(d parityDomain, withParity bool) int {
	pb := fieldMap[d.parity]
	n := 0
	for _, rm := range d.bits {
		m := rm.mask
		if !withParity && rm.reg == pb.reg {
			m &^= pb.mask()
		}
		n += bits.OnesCount8(c.regs[rm.reg] & m)
	}
	return n
}

// computeParity sets the parity bit so the domain holds an odd number of ones.
func (c *registerCache) computeParity(d parityDomain) {
	if c.ones(d, false)%2 == 0 {
		c.set(d.parity, 1)
		return
	}
	c.set(d.parity, 0)
}

func (c *registerCache) parityOK(d parityDomain) bool {
	return c.ones(d, true)%2 == 1
}

// touched reports whether any register of the domain waits for a flush.
func (c *registerCache) touched(d parityDomain) bool {
	for _, rm := range d.bits {
		if c.dirty[rm.reg] {
			return true
		}
	}
	return false
}

// seal recomputes the parity of every domain changed since the last flush.
// It must run right before flushing configuration.
func (c *registerCache) seal() {
	for _, d := range []parityDomain{fuseParity, configParity} {
		if c.touched(d) {
			c.computeParity(d)
		}
	}
}
