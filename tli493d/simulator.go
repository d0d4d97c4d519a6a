package tli493d

import (
	"context"
	"fmt"

	"github.com/mklimuk/magnetic"
)

var _ magnetic.I2CBus = &Simulator{}

// Simulator is an in-memory TLI493D implementing magnetic.I2CBus without any
// hardware. It keeps a register file with auto-incrementing pointer, honours
// read-only registers and flags parity the way the device does after every
// write. Faults can be injected for the next transaction.
//
// Example usage:
//
//	sim := NewSimulator(ProductA0)
//	sim.SetMeasurement(770, 0, -385, 1180)
//	s := New(sim, WithPowerCycleDelay(0))
type Simulator struct {
	address  byte
	regs     registerCache
	pointer  int
	failNext error
	short    bool
	writes   int
	reads    int
}

// NewSimulator returns a device in its power-on state: master controlled mode,
// full range, wake-up disabled and both parity bits valid.
func NewSimulator(product ProductType) *Simulator {
	s := &Simulator{address: byte(product)}
	idx, _ := product.index()
	s.regs.set(fieldAddress, idx)
	s.regs.set(fieldMode, byte(ModeMasterControlled))
	s.regs.set(fieldType, 0x01)
	s.regs.set(fieldHardwareVersion, 0x09)
	s.regs.computeParity(fuseParity)
	s.regs.computeParity(configParity)
	s.update()
	return s
}

// FailNext makes the next transaction fail with err.
func (s *Simulator) FailNext(err error) {
	s.failNext = err
}

// ShortNext makes the next read return fewer bytes than requested.
func (s *Simulator) ShortNext() {
	s.short = true
}

// SetMeasurement loads raw codes into the data registers and advances the
// frame counter.
func (s *Simulator) SetMeasurement(x, y, z, temp int16) {
	u, l := encode(x, true)
	s.regs.set(fieldBX1, u)
	s.regs.set(fieldBX2, l>>4)
	u, l = encode(y, true)
	s.regs.set(fieldBY1, u)
	s.regs.set(fieldBY2, l>>4)
	u, l = encode(z, true)
	s.regs.set(fieldBZ1, u)
	s.regs.set(fieldBZ2, l>>4)
	u, l = encode(temp, false)
	s.regs.set(fieldTemp1, u)
	s.regs.set(fieldTemp2, l>>6)
	s.regs.set(fieldFrameCounter, s.regs.get(fieldFrameCounter)+1)
}

// Register returns the current value of reg.
func (s *Simulator) Register(reg byte) byte {
	return s.regs.regs[reg]
}

// Writes returns the number of register write transactions received.
func (s *Simulator) Writes() int {
	return s.writes
}

// Reads returns the number of read transactions served.
func (s *Simulator) Reads() int {
	return s.reads
}

func (s *Simulator) take() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Simulator) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := s.take(); err != nil {
		return err
	}
	if address != s.address {
		return fmt.Errorf("no acknowledge from %#04x", address)
	}
	if len(buffer) == 0 {
		return nil
	}
	s.pointer = int(buffer[0]) % registerCount
	if len(buffer) == 1 {
		return nil
	}
	s.writes++
	for _, b := range buffer[1:] {
		if writable(s.pointer) {
			ro := readOnlyMask(s.pointer)
			s.regs.regs[s.pointer] = s.regs.regs[s.pointer]&ro | b&^ro
		}
		s.pointer = (s.pointer + 1) % registerCount
	}
	s.update()
	return nil
}

func (s *Simulator) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := s.take(); err != nil {
		return err
	}
	if address != s.address {
		return fmt.Errorf("no acknowledge from %#04x", address)
	}
	n := len(buffer)
	if s.short {
		s.short = false
		n--
	}
	for i := 0; i < n; i++ {
		buffer[i] = s.regs.regs[s.pointer]
		s.pointer = (s.pointer + 1) % registerCount
	}
	s.reads++
	if n != len(buffer) {
		return fmt.Errorf("%w: got %d of %d bytes", magnetic.ErrShortTransfer, n, len(buffer))
	}
	return nil
}

func (s *Simulator) Release(ctx context.Context) error {
	return nil
}

// update derives the status bits the device computes on its own.
func (s *Simulator) update() {
	s.regs.setFlag(fieldConfigFlag, s.regs.parityOK(configParity))
	s.regs.setFlag(fieldFuseFlag, s.regs.parityOK(fuseParity))
	s.regs.setFlag(fieldTestMode, s.regs.flag(fieldExtraShortRange))
	active := s.regs.flag(fieldWakeUp) && s.regs.flag(fieldConfigFlag) && !s.regs.flag(fieldTestMode)
	s.regs.setFlag(fieldWakeUpActive, active)
}
