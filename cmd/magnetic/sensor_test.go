package main

import (
	"context"
	"testing"

	"github.com/mklimuk/magnetic/config"
	"github.com/mklimuk/magnetic/tli493d"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyProfile(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Adapter.Kind = config.AdapterSim
	cfg.Sensor.Product = "A3"
	cfg.Sensor.Mode = "fast"
	cfg.Sensor.Range = "short"

	s := &session{ctx: ctx}
	require.NoError(t, s.openBus(cfg.Adapter, tli493d.ProductA3))
	opts, err := sensorOptions(cfg.Sensor)
	require.NoError(t, err)
	dev := tli493d.New(s.bus, append(opts, tli493d.WithPowerCycleDelay(0))...)
	require.NoError(t, dev.Begin(ctx, false))
	require.NoError(t, applyProfile(ctx, dev, cfg.Sensor))
	assert.Equal(t, tli493d.ModeFast, dev.AccessMode())
	assert.Equal(t, tli493d.RangeShort, dev.Range())

	require.NoError(t, dev.UpdateData(ctx))
	assert.InDelta(t, 25, dev.Temperature(), 0.01)
	assert.InDelta(t, 770/15.4, dev.Z(), 0.01)
}

func TestSettingsPersistAcrossSessions(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Adapter.Kind = config.AdapterSim
	cfg.Sensor.PowerCycleMs = 0

	first := &session{ctx: ctx}
	require.NoError(t, first.openBus(cfg.Adapter, tli493d.ProductA0))
	require.NoError(t, first.start(cfg.Sensor, false))
	assert.Equal(t, tli493d.ModeMasterControlled, first.dev.AccessMode())
	require.NoError(t, first.dev.SetMeasurementRange(ctx, tli493d.RangeShort))
	require.NoError(t, first.dev.SetAccessMode(ctx, tli493d.ModeFast))

	next := &session{ctx: ctx, bus: first.bus}
	require.NoError(t, next.start(cfg.Sensor, false))
	assert.Equal(t, tli493d.RangeShort, next.dev.Range())
	assert.Equal(t, tli493d.ModeFast, next.dev.AccessMode())

	// a profile that names them still wins
	cfg.Sensor.Range = "full"
	cfg.Sensor.Mode = "lowpower"
	last := &session{ctx: ctx, bus: first.bus}
	require.NoError(t, last.start(cfg.Sensor, false))
	assert.Equal(t, tli493d.RangeFull, last.dev.Range())
	assert.Equal(t, tli493d.ModeLowPower, last.dev.AccessMode())
}

func TestSetThresholds(t *testing.T) {
	ctx := context.Background()
	dev := tli493d.New(tli493d.NewSimulator(tli493d.ProductA0), tli493d.WithPowerCycleDelay(0))
	require.NoError(t, dev.Begin(ctx, false))

	w := config.WakeUpConfig{Unit: config.UnitLSB, XH: 100, XL: -100, YH: 50, YL: -50}
	require.NoError(t, setThresholds(ctx, dev, w))
	assert.Equal(t, 100, dev.WakeUpThresholds().XH)

	// too wide is written and only reported
	w = config.WakeUpConfig{Unit: config.UnitLSB, XH: 2000, XL: -2000}
	require.NoError(t, setThresholds(ctx, dev, w))
	assert.Equal(t, 2000, dev.WakeUpThresholds().XH)

	w = config.WakeUpConfig{Unit: config.UnitLSB, XH: 1.5}
	assert.Error(t, setThresholds(ctx, dev, w))
}
