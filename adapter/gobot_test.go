package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/mklimuk/magnetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gobot.io/x/gobot/v2/drivers/i2c"
)

type fakeConnection struct {
	i2c.Connection
	written [][]byte
	data    []byte
	short   bool
	closed  bool
}

func (f *fakeConnection) Write(b []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeConnection) Read(b []byte) (int, error) {
	n := copy(b, f.data)
	if f.short {
		n--
	}
	return n, nil
}

func (f *fakeConnection) Close() error {
	f.closed = true
	return nil
}

type fakeConnector struct {
	i2c.Connector
	conns map[int]*fakeConnection
	opens int
	bus   int
}

func (f *fakeConnector) GetI2cConnection(address int, bus int) (i2c.Connection, error) {
	f.opens++
	f.bus = bus
	c, ok := f.conns[address]
	if !ok {
		return nil, errors.New("no such device")
	}
	return c, nil
}

func TestGobotBus(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnection{data: []byte{0x12, 0x34}}
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x35: conn}}
	bus := NewGobotBus(connector, 2)

	require.NoError(t, bus.WriteToAddr(ctx, 0x35, []byte{0x00}))
	buf := make([]byte, 2)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x35, buf))
	assert.Equal(t, []byte{0x12, 0x34}, buf)
	assert.Equal(t, [][]byte{{0x00}}, conn.written)
	assert.Equal(t, 1, connector.opens, "connection is reused")
	assert.Equal(t, 2, connector.bus)

	conn.short = true
	err := bus.ReadFromAddr(ctx, 0x35, buf)
	assert.ErrorIs(t, err, magnetic.ErrShortTransfer)

	assert.Error(t, bus.WriteToAddr(ctx, 0x22, []byte{0x00}))

	require.NoError(t, bus.Close())
	assert.True(t, conn.closed)
}
