package magnetic

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrShortTransfer is returned by transports when fewer bytes than requested were transferred.
var ErrShortTransfer = errors.New("short transfer")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// PowerPin is a digital output driving the sensor supply (or reset) line.
type PowerPin interface {
	Out(l gpio.Level) error
}
