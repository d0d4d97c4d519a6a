package gpio

import (
	"context"
	"errors"
	"testing"

	"github.com/mklimuk/magnetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
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
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestMCP23017PinOut(t *testing.T) {
	bus := &MockI2CBus{}
	addr := byte(DefaultMCP23017Address)
	// OLAT B holds 0x01, pin 3 goes high; IODIR B has pin 3 as input
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x15}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, addr, mock.Anything).Return([]byte{0x01}, nil).Once()
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x15, 0x09}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x01}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, addr, mock.Anything).Return([]byte{0xFF}, nil).Once()
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x01, 0xF7}).Return(nil).Once()

	dev := NewMCP23017(bus, addr)
	pin := dev.Pin(PortB, 3)
	require.NoError(t, pin.Out(gpio.High))
	bus.AssertExpectations(t)
	assert.Equal(t, "MCP23017(0x21)/GPB3", pin.String())
}

func TestMCP23017RetriesBusyBus(t *testing.T) {
	bus := &MockI2CBus{}
	addr := byte(DefaultMCP23017Address)
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x00, 0x00}).Return(magnetic.ErrBusBusy).Once()
	bus.On("Release", mock.Anything).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x00, 0x00}).Return(nil).Once()

	dev := NewMCP23017(bus, addr)
	require.NoError(t, dev.SetDirection(context.Background(), PortA, 0x00))
	bus.AssertExpectations(t)
}

func TestMCP23017Errors(t *testing.T) {
	bus := &MockI2CBus{}
	addr := byte(DefaultMCP23017Address)
	bus.On("WriteToAddr", mock.Anything, addr, mock.Anything).Return(errors.New("nack"))

	dev := NewMCP23017(bus, addr)
	err := dev.PullUp(context.Background(), PortA, 0xFF)
	assert.ErrorContains(t, err, "nack")
	bus.AssertNumberOfCalls(t, "WriteToAddr", 1)

	_, err = dev.Read(context.Background(), PortB)
	assert.Error(t, err)
	assert.Error(t, dev.Set(context.Background(), PortA, 8, gpio.Low))
}
