// Package tli493d drives the Infineon TLI493D-W2BW 3D magnetic sensor family
// (product types A0 to A3) over I2C.
//
// Configuration calls change fields in a register cache, recompute the fuse
// and configuration parity bits and flush the changed registers. Measurement
// calls refresh the data registers and decode them into a Sample.
//
// Typical usage:
//
//	s := tli493d.New(bus, tli493d.WithProduct(tli493d.ProductA0))
//	if err := s.Begin(ctx, true); err != nil { ... }
//	if err := s.UpdateData(ctx); err != nil { ... }
//	fmt.Println(s.X(), s.Y(), s.Z(), s.Temperature())
//
// A Dev owns its register cache and must not be shared between goroutines.
package tli493d

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/magnetic"
	"periph.io/x/conn/v3/gpio"
)

var (
	// ErrBus is returned when the transport reports an acknowledgment failure.
	ErrBus = errors.New("tli493d: bus error")
	// ErrFrame is returned when the device answered with the wrong number of bytes.
	ErrFrame = errors.New("tli493d: frame error")

	ErrNotInitialized  = errors.New("tli493d: sensor not initialized")
	ErrInvalidArgument = errors.New("tli493d: invalid argument")
	ErrOutOfRange      = errors.New("tli493d: value out of range")
	ErrThresholdOrder  = errors.New("tli493d: upper threshold below lower threshold")
	// ErrWindowTooWide is returned after the thresholds were written; the
	// wake-up function will not work with them.
	ErrWindowTooWide = errors.New("tli493d: wake-up window exceeds half output range")
	ErrWakeUpEnabled = errors.New("tli493d: wake-up is enabled")
	ErrTestMode      = errors.New("tli493d: test mode active")
	ErrParity        = errors.New("tli493d: configuration parity not flagged")
	ErrTempEnabled   = errors.New("tli493d: temperature measurement is enabled")
)

const (
	defaultPowerCycleDelay = 50 * time.Millisecond
	generalCallAddress     = 0x00
)

// Dev is a handle to one TLI493D sensor.
type Dev struct {
	transport   transport
	config      Config
	cache       registerCache
	sample      Sample
	initialized bool
	log         *slog.Logger
}

func New(bus magnetic.I2CBus, opts ...Option) *Dev {
	config := Config{
		Mode:            ModeMasterControlled,
		Product:         ProductA0,
		Protocol:        ProtocolTwoByte,
		PowerLevel:      gpio.High,
		PowerCycleDelay: defaultPowerCycleDelay,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dev{
		transport: transport{
			bus:      bus,
			address:  byte(config.Product),
			protocol: config.Protocol,
		},
		config: config,
		log:    logger.With("sensor", "tli493d", "addr", fmt.Sprintf("%#04x", byte(config.Product))),
	}
}

// Begin optionally resets the sensor, reads its registers and applies the
// configured address, read protocol and access mode.
func (d *Dev) Begin(ctx context.Context, reset bool) error {
	if !d.config.Product.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, d.config.Product)
	}
	if !d.config.Mode.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, d.config.Mode)
	}
	if reset {
		if err := d.Reset(ctx); err != nil {
			return fmt.Errorf("could not reset sensor: %w", err)
		}
	}
	if err := d.cache.refresh(ctx, &d.transport, 0, registerCount); err != nil {
		return fmt.Errorf("could not read registers: %w", err)
	}
	idx, _ := d.config.Product.index()
	mode := d.config.Mode
	keep := d.config.KeepMode && AccessMode(d.cache.get(fieldMode)).Valid()
	if keep {
		mode = AccessMode(d.cache.get(fieldMode))
	}
	err := d.configure(ctx, "begin", func(c *registerCache) {
		c.set(fieldAddress, idx)
		c.set(fieldProtocol, byte(d.config.Protocol))
		if !keep {
			applyMode(c, mode)
		}
		// interrupt off, collision avoidance (clock stretching) on
		c.setFlag(fieldInterrupt, true)
		c.setFlag(fieldCollisionAvoidance, false)
		// the device may come up with stale parity bits
		c.computeParity(fuseParity)
		c.computeParity(configParity)
	})
	if err != nil {
		return err
	}
	if err := d.cache.refresh(ctx, &d.transport, 0, registerCount); err != nil {
		return fmt.Errorf("could not read registers: %w", err)
	}
	d.config.Mode = mode
	d.initialized = true
	d.log.Debug("sensor initialized", "mode", mode, "protocol", d.config.Protocol, "range", d.Range())
	return nil
}

// Reset power-cycles the sensor through the power pin or, without one, sends
// the bus recovery sequence. Begin must be called again afterwards.
func (d *Dev) Reset(ctx context.Context) error {
	d.initialized = false
	if d.config.PowerPin != nil {
		if err := d.config.PowerPin.Out(!d.config.PowerLevel); err != nil {
			return fmt.Errorf("could not power down sensor: %w", err)
		}
		if err := sleep(ctx, d.config.PowerCycleDelay); err != nil {
			return err
		}
		if err := d.config.PowerPin.Out(d.config.PowerLevel); err != nil {
			return fmt.Errorf("could not power up sensor: %w", err)
		}
		return sleep(ctx, d.config.PowerCycleDelay)
	}
	// the device does not acknowledge the recovery frames
	for _, b := range []byte{0xFF, 0xFF, 0x00, 0x00} {
		if err := d.transport.bus.WriteToAddr(ctx, generalCallAddress, []byte{b}); err != nil {
			d.log.Debug("recovery frame not acknowledged", "frame", b, "error", err)
		}
	}
	return sleep(ctx, d.config.PowerCycleDelay)
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commit seals parity over changed domains and flushes the cache.
func (d *Dev) commit(ctx context.Context, op string) error {
	if !d.cache.pending() {
		return nil
	}
	d.cache.seal()
	if err := d.cache.flush(ctx, &d.transport); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.log.Debug("configuration written", "op", op)
	return nil
}

// configure applies change to the cache and commits it. When the write fails
// the cache returns to its previous content, parity bits included.
func (d *Dev) configure(ctx context.Context, op string, change func(c *registerCache)) error {
	prev := d.cache
	change(&d.cache)
	if err := d.commit(ctx, op); err != nil {
		d.cache.rollback(prev)
		return err
	}
	return nil
}

func (d *Dev) ready() error {
	if !d.initialized {
		return ErrNotInitialized
	}
	return nil
}

func applyMode(c *registerCache, mode AccessMode) {
	c.set(fieldMode, byte(mode))
	if mode == ModeMasterControlled {
		c.set(fieldTrigger, byte(TriggerBeforeMSB))
		return
	}
	c.set(fieldTrigger, byte(TriggerNone))
}

// SetAccessMode switches the access mode. Master controlled mode triggers a
// conversion before the first MSB of every read.
func (d *Dev) SetAccessMode(ctx context.Context, mode AccessMode) error {
	if err := d.ready(); err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, mode)
	}
	err := d.configure(ctx, "set access mode", func(c *registerCache) {
		applyMode(c, mode)
	})
	if err != nil {
		return err
	}
	d.config.Mode = mode
	return nil
}

func (d *Dev) AccessMode() AccessMode {
	return AccessMode(d.cache.get(fieldMode))
}

// SetTrigger selects the conversion trigger. It has no effect in low power mode.
func (d *Dev) SetTrigger(ctx context.Context, trigger Trigger) error {
	if err := d.ready(); err != nil {
		return err
	}
	if trigger > TriggerAfterReg5 {
		return fmt.Errorf("%w: trigger %d", ErrInvalidArgument, trigger)
	}
	if d.AccessMode() == ModeLowPower {
		return nil
	}
	return d.configure(ctx, "set trigger", func(c *registerCache) {
		c.set(fieldTrigger, byte(trigger))
	})
}

func (d *Dev) Trigger() Trigger {
	return Trigger(d.cache.get(fieldTrigger))
}

// SetMeasurementRange changes the full-scale range. The extra short range is
// refused while wake-up is enabled.
func (d *Dev) SetMeasurementRange(ctx context.Context, r Range) error {
	if err := d.ready(); err != nil {
		return err
	}
	p, ok := r.props()
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, r)
	}
	if r == RangeExtraShort && d.WakeUpEnabled() {
		return ErrWakeUpEnabled
	}
	return d.configure(ctx, "set measurement range", func(c *registerCache) {
		c.set(fieldShortRange, p.shortBit)
		c.set(fieldExtraShortRange, p.extraBit)
	})
}

// Range returns the configured full-scale range.
func (d *Dev) Range() Range {
	switch {
	case d.cache.flag(fieldExtraShortRange):
		return RangeExtraShort
	case d.cache.flag(fieldShortRange):
		return RangeShort
	}
	return RangeFull
}

// SetUpdateRate sets the low power mode update rate from 0 (fastest) to 7.
func (d *Dev) SetUpdateRate(ctx context.Context, rate uint8) error {
	if err := d.ready(); err != nil {
		return err
	}
	if rate > 7 {
		return fmt.Errorf("%w: update rate %d", ErrInvalidArgument, rate)
	}
	return d.configure(ctx, "set update rate", func(c *registerCache) {
		c.set(fieldUpdateRate, rate)
	})
}

func (d *Dev) EnableTemp(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.configure(ctx, "enable temperature", func(c *registerCache) {
		c.setFlag(fieldDisableTemp, false)
		// temperature is only measured together with Bz
		c.setFlag(fieldDisableBz, false)
	})
}

func (d *Dev) DisableTemp(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.configure(ctx, "disable temperature", func(c *registerCache) {
		c.setFlag(fieldDisableTemp, true)
	})
}

func (d *Dev) EnableBz(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.configure(ctx, "enable bz", func(c *registerCache) {
		c.setFlag(fieldDisableBz, false)
	})
}

// DisableBz requires the temperature measurement to be disabled first.
func (d *Dev) DisableBz(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	if !d.cache.flag(fieldDisableTemp) {
		return ErrTempEnabled
	}
	return d.configure(ctx, "disable bz", func(c *registerCache) {
		c.setFlag(fieldDisableBz, true)
	})
}

func (d *Dev) EnableInterrupt(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.configure(ctx, "enable interrupt", func(c *registerCache) {
		c.setFlag(fieldInterrupt, false)
	})
}

// DisableInterrupt turns collision avoidance, when enabled, into clock stretching.
func (d *Dev) DisableInterrupt(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.configure(ctx, "disable interrupt", func(c *registerCache) {
		c.setFlag(fieldInterrupt, true)
	})
}

func (d *Dev) EnableCollisionAvoidance(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.configure(ctx, "enable collision avoidance", func(c *registerCache) {
		c.setFlag(fieldCollisionAvoidance, false)
	})
}

func (d *Dev) DisableCollisionAvoidance(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.configure(ctx, "disable collision avoidance", func(c *registerCache) {
		c.setFlag(fieldCollisionAvoidance, true)
	})
}

// EnableWakeUp requires test mode off and the configuration parity flagged
// by the device at the last read.
func (d *Dev) EnableWakeUp(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	if d.cache.flag(fieldTestMode) || d.cache.flag(fieldExtraShortRange) {
		return ErrTestMode
	}
	if !d.cache.flag(fieldConfigFlag) || !d.cache.parityOK(configParity) {
		return ErrParity
	}
	return d.configure(ctx, "enable wake-up", func(c *registerCache) {
		c.setFlag(fieldWakeUp, true)
	})
}

func (d *Dev) DisableWakeUp(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.configure(ctx, "disable wake-up", func(c *registerCache) {
		c.setFlag(fieldWakeUp, false)
	})
}

// WakeUpEnabled reports the configured WU bit.
func (d *Dev) WakeUpEnabled() bool {
	return d.cache.flag(fieldWakeUp)
}

// WakeUpActive reads the WA bit, set by the device when wake-up is in effect.
func (d *Dev) WakeUpActive(ctx context.Context) (bool, error) {
	if err := d.ready(); err != nil {
		return false, err
	}
	if err := d.cache.refresh(ctx, &d.transport, int(regWU), 1); err != nil {
		return false, err
	}
	return d.cache.flag(fieldWakeUpActive), nil
}

// SetWakeUpThreshold sets the wake-up window as ratios of the output range in [-1, 1].
func (d *Dev) SetWakeUpThreshold(ctx context.Context, xh, xl, yh, yl, zh, zl float64) error {
	w, err := WindowFromRatio(xh, xl, yh, yl, zh, zl)
	if err != nil {
		return err
	}
	return d.applyWindow(ctx, w)
}

// SetWakeUpThresholdLSB sets the wake-up window in raw codes [-2048, 2047].
func (d *Dev) SetWakeUpThresholdLSB(ctx context.Context, xh, xl, yh, yl, zh, zl int) error {
	return d.applyWindow(ctx, Window{XH: xh, XL: xl, YH: yh, YL: yl, ZH: zh, ZL: zl})
}

// SetWakeUpThresholdMT sets the wake-up window in mT for the active range.
func (d *Dev) SetWakeUpThresholdMT(ctx context.Context, xh, xl, yh, yl, zh, zl float64) error {
	w, err := WindowFromMilliTesla(d.Range(), xh, xl, yh, yl, zh, zl)
	if err != nil {
		return err
	}
	return d.applyWindow(ctx, w)
}

// applyWindow writes the thresholds once they are valid. A window wider than
// half the output range is still written, then reported with ErrWindowTooWide.
func (d *Dev) applyWindow(ctx context.Context, w Window) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return err
	}
	err := d.configure(ctx, "set wake-up thresholds", func(c *registerCache) {
		c.setWindow(w)
	})
	if err != nil {
		return err
	}
	return w.Fits(d.Range())
}

// WakeUpThresholds returns the window held in the registers. Stored
// thresholds have 11 bits, so odd codes read back one lower.
func (d *Dev) WakeUpThresholds() Window {
	return d.cache.window()
}

// UpdateData reads the data registers and decodes all four channels. On
// error the previous sample is kept.
func (d *Dev) UpdateData(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := d.cache.refresh(ctx, &d.transport, int(regBX), diagnosisLength); err != nil {
		return err
	}
	c := &d.cache
	d.sample = Sample{
		X:     decode(c.get(fieldBX1), c.get(fieldBX2)<<4, true),
		Y:     decode(c.get(fieldBY1), c.get(fieldBY2)<<4, true),
		Z:     decode(c.get(fieldBZ1), c.get(fieldBZ2)<<4, true),
		Temp:  decode(c.get(fieldTemp1), c.get(fieldTemp2)<<6, false),
		Range: d.Range(),
	}
	return nil
}

// Sample returns the last decoded measurement.
func (d *Dev) Sample() Sample {
	return d.sample
}

// X returns the x component of the last sample in mT.
func (d *Dev) X() float64 {
	return d.sample.XmT()
}

func (d *Dev) Y() float64 {
	return d.sample.YmT()
}

func (d *Dev) Z() float64 {
	return d.sample.ZmT()
}

func (d *Dev) Norm() float64 {
	return d.sample.Norm()
}

func (d *Dev) Azimuth() float64 {
	return d.sample.Azimuth()
}

func (d *Dev) Polar() float64 {
	return d.sample.Polar()
}

// Temperature returns the last temperature in degrees Celsius.
func (d *Dev) Temperature() float64 {
	return d.sample.Celsius()
}

// Diagnosis returns the data and DIAG registers as last read.
func (d *Dev) Diagnosis() [diagnosisLength]byte {
	var out [diagnosisLength]byte
	copy(out[:], d.cache.regs[:diagnosisLength])
	return out
}

// Status decodes the DIAG register as last read.
type Status struct {
	BusParity      bool `yaml:"bus_parity"`
	FuseParityOK   bool `yaml:"fuse_parity_ok"`
	ConfigParityOK bool `yaml:"config_parity_ok"`
	TestMode       bool `yaml:"test_mode"`
	PowerDown3     bool `yaml:"pd3"`
	PowerDown0     bool `yaml:"pd0"`
	Frame          byte `yaml:"frame"`
	Type           byte `yaml:"type"`
	HardwareVer    byte `yaml:"hw_version"`
}

func (d *Dev) Status() Status {
	c := &d.cache
	return Status{
		BusParity:      c.flag(fieldBusParity),
		FuseParityOK:   c.flag(fieldFuseFlag),
		ConfigParityOK: c.flag(fieldConfigFlag),
		TestMode:       c.flag(fieldTestMode),
		PowerDown3:     c.flag(fieldPD3),
		PowerDown0:     c.flag(fieldPD0),
		Frame:          c.get(fieldFrameCounter),
		Type:           c.get(fieldType),
		HardwareVer:    c.get(fieldHardwareVersion),
	}
}
