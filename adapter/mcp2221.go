package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"github.com/mklimuk/magnetic"
	"github.com/mklimuk/magnetic/snsctx"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const (
	cmdStatus        = 0x10
	cmdReadData      = 0x40
	cmdSetGPIO       = 0x50
	cmdGetGPIO       = 0x51
	cmdWriteData     = 0x90
	cmdReadRequest   = 0x91
	cmdGetSRAM       = 0xB0
	cmdSetSRAM       = 0xB1
	reportSize       = 64
	maxTransfer      = 60
	clockFrequency   = 12 * physic.MegaHertz
	DefaultI2CSpeed  = 100 * physic.KiloHertz
	statusCancel     = 0x10
	statusSetSpeed   = 0x20
	readEngineFailed = 0x41
	invalidSize      = 127
	notGPIO          = 0xEE
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")

var _ magnetic.I2CBus = &MCP2221{}

// MCP2221 is a USB HID to I2C bridge. Every request opens the HID device,
// sends one 64 byte report and reads the answer.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	id           []int
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"buffer_counter"`
	I2CSpeedDivider        int    `yaml:"speed_divider"`
	I2CTimeout             int    `yaml:"timeout"`
	CurrentAddress         string `yaml:"address"`
	LastWriteRequestedSize uint16 `yaml:"requested"`
	LastWriteSentSize      uint16 `yaml:"sent"`
	ReadPending            int    `yaml:"read_pending"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

func (m GPIOMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// alternate function of GP0
	GPIO0LedUartRx GPIODesignation = 0b00000001
	// dedicated function of GP0
	GPIO0SSPND GPIODesignation = 0b00000010
	// dedicated function of GP1
	GPIO1ClockOutput GPIODesignation = 0b00000001
	GPIO1ADC1        GPIODesignation = 0b00000010
	GPIO1LedUartTx   GPIODesignation = 0b00000011
	// alternate function 2 of GP1
	GPIO1InterruptDetection GPIODesignation = 0b00000100
	GPIO2ClockOutput        GPIODesignation = 0b00000001
	GPIO2ADC2               GPIODesignation = 0b00000010
	GPIO2DAC1               GPIODesignation = 0b00000011
	GPIO3LEDI2C             GPIODesignation = 0b00000001
	GPIO3ADC3               GPIODesignation = 0b00000010
	GPIO3DAC2               GPIODesignation = 0b00000011
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

type MCP2221GPIOValues struct {
	GPIO0Mode  GPIOMode `yaml:"GP0_mode"`
	GPIO0Value byte     `yaml:"GPIO0"`
	GPIO1Mode  GPIOMode `yaml:"GP1_mode"`
	GPIO1Value byte     `yaml:"GPIO1"`
	GPIO2Mode  GPIOMode `yaml:"GP2_mode"`
	GPIO2Value byte     `yaml:"GPIO2"`
	GPIO3Mode  GPIOMode `yaml:"GP3_mode"`
	GPIO3Value byte     `yaml:"GPIO3"`
}

type MCP2221GPIOParameters struct {
	GPIO0Mode        GPIOMode        `yaml:"GP0_mode"`
	GPIO0Designation GPIODesignation `yaml:"GP0_designation"`
	GPIO1Mode        GPIOMode        `yaml:"GP1_mode"`
	GPIO1Designation GPIODesignation `yaml:"GP1_designation"`
	GPIO2Mode        GPIOMode        `yaml:"GP2_mode"`
	GPIO2Designation GPIODesignation `yaml:"GP2_designation"`
	GPIO3Mode        GPIOMode        `yaml:"GP3_mode"`
	GPIO3Designation GPIODesignation `yaml:"GP3_designation"`
}

// NewMCP2221 returns a bridge handle. With more than one bridge attached the
// enumeration index must be given.
func NewMCP2221(id ...int) *MCP2221 {
	return &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		id:           id,
	}
}

// Init cancels any transfer left pending by a previous process and sets the
// bus clock.
func (d *MCP2221) Init(ctx context.Context, speed physic.Frequency) error {
	if _, err := d.ReleaseBus(ctx); err != nil {
		return fmt.Errorf("could not release bus: %w", err)
	}
	return d.SetSpeed(ctx, speed)
}

// SetSpeed sets the I2C clock; the bridge supports 47 kHz up to 400 kHz.
func (d *MCP2221) SetSpeed(ctx context.Context, speed physic.Frequency) error {
	if speed <= 0 {
		speed = DefaultI2CSpeed
	}
	divider := int64(clockFrequency/speed) - 3
	if divider < 0 || divider > 0xFF {
		return fmt.Errorf("unsupported bus speed %s", speed)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = statusSetSpeed
	d.request[4] = byte(divider)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	// 0x20 acknowledges the new divider, 0x21 means a transfer is in progress
	if d.response[3] != statusSetSpeed {
		return fmt.Errorf("%w: speed not accepted (%#04x)", magnetic.ErrBusBusy, d.response[3])
	}
	return nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("write of %d bytes exceeds %d byte report", len(buffer), maxTransfer)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWriteData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		slog.Debug("adapter busy", "addr", fmt.Sprintf("%#04x", address))
		return magnetic.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("read of %d bytes exceeds %d byte report", len(buffer), maxTransfer)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdReadRequest
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return magnetic.ErrBusBusy
	}
	d.request[0] = cmdReadData
	resetBuffer(d.response)
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == readEngineFailed {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == invalidSize || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("%w: expected %d bytes, got %d", magnetic.ErrShortTransfer, len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetSRAM
	d.request[1] = 0x01
	d.request[2] = byte(params.GPIO0Designation) | byte(params.GPIO0Mode)
	d.request[3] = byte(params.GPIO1Designation) | byte(params.GPIO1Mode)
	d.request[4] = byte(params.GPIO2Designation) | byte(params.GPIO2Mode)
	d.request[5] = byte(params.GPIO3Designation) | byte(params.GPIO3Mode)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return ErrCommandFailed
	}
	return nil
}

// SetGPIO drives pin (0 to 3) as an output at level.
func (d *MCP2221) SetGPIO(ctx context.Context, pin int, level gpio.Level) error {
	if pin < 0 || pin > 3 {
		return fmt.Errorf("invalid MCP2221 pin GP%d", pin)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetGPIO
	// each pin takes four bytes: alter output, output value, alter direction, direction
	off := 2 + pin*4
	d.request[off] = 0x01
	if level {
		d.request[off+1] = 0x01
	}
	d.request[off+2] = 0x01
	d.request[off+3] = byte(GPIOModeOut)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set GPIO output command write failed: %w", err)
	}
	if d.response[1] != 0x00 || d.response[off+1] == notGPIO {
		return fmt.Errorf("%w: GP%d is not configured for GPIO operation", ErrCommandFailed, pin)
	}
	return nil
}

func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetGPIO
	err := d.send(ctx)
	var res MCP2221GPIOValues
	if err != nil {
		return res, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return res, ErrCommandFailed
	}
	modes := [4]*GPIOMode{&res.GPIO0Mode, &res.GPIO1Mode, &res.GPIO2Mode, &res.GPIO3Mode}
	values := [4]*byte{&res.GPIO0Value, &res.GPIO1Value, &res.GPIO2Value, &res.GPIO3Value}
	for i := range modes {
		*values[i] = d.response[2+i*2]
		*modes[i] = GPIOModeNoOperation
		if dir := d.response[3+i*2]; dir != byte(GPIOModeNoOperation) {
			*modes[i] = GPIOMode(dir << 3)
		}
	}
	return res, nil
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetSRAM
	d.request[1] = 0x01
	err := d.send(ctx)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return MCP2221GPIOParameters{
		GPIO0Mode:        GPIOMode(d.response[22] & gpioModeMask),
		GPIO0Designation: GPIODesignation(d.response[22] & gpioOperationMask),
		GPIO1Mode:        GPIOMode(d.response[23] & gpioModeMask),
		GPIO1Designation: GPIODesignation(d.response[23] & gpioOperationMask),
		GPIO2Mode:        GPIOMode(d.response[24] & gpioModeMask),
		GPIO2Designation: GPIODesignation(d.response[24] & gpioOperationMask),
		GPIO3Mode:        GPIOMode(d.response[25] & gpioModeMask),
		GPIO3Designation: GPIODesignation(d.response[25] & gpioOperationMask),
	}, nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

// ReleaseBus cancels the current transfer and frees the bus.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = statusCancel
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// Pin returns GPx of the bridge as a power pin for the sensor.
func (d *MCP2221) Pin(n int) *MCP2221Pin {
	return &MCP2221Pin{dev: d, n: n}
}

// MCP2221Pin is one GP pin of the bridge used as a digital output.
type MCP2221Pin struct {
	dev *MCP2221
	n   int
}

func (p *MCP2221Pin) Out(l gpio.Level) error {
	return p.dev.SetGPIO(context.Background(), p.n, l)
}

func (p *MCP2221Pin) String() string {
	return fmt.Sprintf("MCP2221/GP%d", p.n)
}

func (d *MCP2221) open() (*hid.Device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	if len(d.id) == 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification")
		}
		return devs[0].Open()
	}
	if d.id[0] < 0 || d.id[0] >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", d.id[0])
	}
	return devs[d.id[0]].Open()
}

func (d *MCP2221) send(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, err := d.open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Debug("could not close adapter", "error", err)
		}
	}()
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter\n" + hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	time.Sleep(d.responseWait)
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter\n" + hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
