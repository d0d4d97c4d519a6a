package tli493d

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mklimuk/magnetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockI2CBus is a mock implementation of magnetic.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if args.Get(0) != nil {
		if data, ok := args.Get(0).([]byte); ok {
			copy(buffer, data)
		}
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestFieldSetPreservesSiblings(t *testing.T) {
	var c registerCache
	c.regs[regBX2] = 0xA5
	c.set(fieldBY2, 0x3)
	assert.Equal(t, byte(0xA3), c.regs[regBX2])
	assert.Equal(t, byte(0xA), c.get(fieldBX2))

	c.regs[regMOD1] = 0xFF
	c.set(fieldMode, 0)
	assert.Equal(t, byte(0xFC), c.regs[regMOD1])
	c.set(fieldAddress, 0x6)
	assert.Equal(t, byte(0x2), c.get(fieldAddress), "value is masked to the field width")
	assert.Equal(t, byte(0xDC), c.regs[regMOD1])
}

func TestFieldSetMarksDirtyOnChange(t *testing.T) {
	var c registerCache
	c.set(fieldWakeUp, 0)
	assert.False(t, c.dirty[regWU])
	assert.False(t, c.pending())
	c.setFlag(fieldWakeUp, true)
	assert.True(t, c.dirty[regWU])
	assert.True(t, c.pending())
}

func TestFieldMapFitsRegisters(t *testing.T) {
	for f, bf := range fieldMap {
		assert.LessOrEqual(t, int(bf.offset+bf.width), 8, "field %d crosses a register boundary", f)
		assert.Less(t, int(bf.reg), registerCount)
	}
}

func TestTransportRead(t *testing.T) {
	tests := []struct {
		name     string
		protocol Protocol
		count    int
		want     int
	}{
		{"one-byte data registers", ProtocolOneByte, diagnosisLength, 7},
		{"two-byte data registers", ProtocolTwoByte, diagnosisLength, 4},
		{"two-byte full map", ProtocolTwoByte, registerCount, 12},
		{"one-byte single register", ProtocolOneByte, 1, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus := &MockI2CBus{}
			bus.On("WriteToAddr", mock.Anything, byte(ProductA0), mock.Anything).Return(nil)
			bus.On("ReadFromAddr", mock.Anything, byte(ProductA0), mock.Anything).Return([]byte{0x11, 0x11}, nil)
			tr := &transport{bus: bus, address: byte(ProductA0), protocol: test.protocol}
			var c registerCache
			require.NoError(t, c.refresh(context.Background(), tr, 0, test.count))
			bus.AssertNumberOfCalls(t, "ReadFromAddr", test.want)
			bus.AssertNumberOfCalls(t, "WriteToAddr", test.want)
			for i := 0; i < test.count; i++ {
				assert.Equal(t, byte(0x11), c.regs[i])
			}
		})
	}
}

func TestRefreshFailureKeepsCache(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(ProductA0), mock.Anything).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, byte(ProductA0), mock.Anything).Return([]byte{0x11, 0x11}, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(ProductA0), mock.Anything).Return(nil, errors.New("nack"))
	tr := &transport{bus: bus, address: byte(ProductA0), protocol: ProtocolTwoByte}
	var c registerCache
	c.regs[0] = 0xAA
	err := c.refresh(context.Background(), tr, 0, diagnosisLength)
	assert.ErrorIs(t, err, ErrBus)
	assert.Equal(t, byte(0xAA), c.regs[0])
}

func TestRefreshKeepsDirtyRegisters(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(ProductA0), mock.Anything).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, byte(ProductA0), mock.Anything).Return([]byte{0x00, 0x00}, nil)
	tr := &transport{bus: bus, address: byte(ProductA0), protocol: ProtocolTwoByte}
	var c registerCache
	c.set(fieldXH, 0x42)
	require.NoError(t, c.refresh(context.Background(), tr, int(regXL), 2))
	assert.Equal(t, byte(0x42), c.regs[regXH])
}

func TestFlushWritesContiguousRuns(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(ProductA0), []byte{byte(regXL), 0x01, 0x02}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(ProductA0), []byte{byte(regConfig), 0x80}).Return(errors.New("nack")).Once()
	tr := &transport{bus: bus, address: byte(ProductA0)}
	var c registerCache
	c.set(fieldXL, 0x01)
	c.set(fieldXH, 0x02)
	c.setFlag(fieldDisableTemp, true)
	// read-only registers are never written
	c.set(fieldBX1, 0x7F)

	err := c.flush(context.Background(), tr)
	assert.ErrorIs(t, err, ErrBus)
	assert.False(t, c.dirty[regXL])
	assert.False(t, c.dirty[regXH])
	assert.True(t, c.dirty[regConfig], "failed run stays dirty")
	bus.AssertExpectations(t)
}

func TestRollbackAfterPartialFlush(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(ProductA0), []byte{byte(regXL), 0x01}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(ProductA0), []byte{byte(regConfig), 0x80}).Return(errors.New("nack")).Once()
	tr := &transport{bus: bus, address: byte(ProductA0)}
	var c registerCache
	prev := c
	c.set(fieldXL, 0x01)
	c.setFlag(fieldDisableTemp, true)

	require.Error(t, c.flush(context.Background(), tr))
	c.rollback(prev)
	assert.Equal(t, prev.regs, c.regs)
	assert.True(t, c.dirty[regXL], "written register is restored on next flush")
	assert.False(t, c.dirty[regConfig])
	bus.AssertExpectations(t)

	bus.On("WriteToAddr", mock.Anything, byte(ProductA0), []byte{byte(regXL), 0x00}).Return(nil).Once()
	require.NoError(t, c.flush(context.Background(), tr))
	bus.AssertExpectations(t)
}

func TestClassify(t *testing.T) {
	short := fmt.Errorf("%w: got 1 of 2 bytes", magnetic.ErrShortTransfer)
	assert.ErrorIs(t, classify("read", short), ErrFrame)
	assert.ErrorIs(t, classify("read", short), magnetic.ErrShortTransfer)
	assert.ErrorIs(t, classify("read", errors.New("nack")), ErrBus)
}

func TestParityIsOdd(t *testing.T) {
	values := []byte{0x00, 0x01, 0x03, 0x80, 0xFF, 0x5A, 0xA5, 0x7E}
	for _, d := range []parityDomain{fuseParity, configParity} {
		for _, v := range values {
			t.Run(fmt.Sprintf("%s/%#02x", d.name, v), func(t *testing.T) {
				var c registerCache
				for _, rm := range d.bits {
					c.regs[rm.reg] = v
				}
				c.computeParity(d)
				assert.True(t, c.parityOK(d))
				assert.Equal(t, 1, c.ones(d, true)%2)

				// any single flipped bit must be detected
				c.regs[d.bits[0].reg] ^= 0x01
				assert.False(t, c.parityOK(d))
			})
		}
	}
}

func TestParityIgnoresWakeUpActive(t *testing.T) {
	var c registerCache
	c.computeParity(configParity)
	c.setFlag(fieldWakeUpActive, true)
	assert.True(t, c.parityOK(configParity))
}

func TestSealOnlyTouchedDomains(t *testing.T) {
	var c registerCache
	c.set(fieldXH, 0x01)
	c.seal()
	assert.True(t, c.parityOK(configParity))
	assert.False(t, c.dirty[regMOD1], "fuse domain untouched")

	c.set(fieldUpdateRate, 0x03)
	c.seal()
	assert.True(t, c.parityOK(fuseParity))
}
