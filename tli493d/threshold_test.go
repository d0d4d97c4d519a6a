package tli493d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatioToCode(t *testing.T) {
	tests := []struct {
		ratio float64
		want  int
		err   error
	}{
		{0, 0, nil},
		{1, MaxCode, nil},
		{-1, MinCode, nil},
		{0.5, 1024, nil},
		{-0.25, -512, nil},
		{1.01, 0, ErrOutOfRange},
		{-2, 0, ErrOutOfRange},
	}
	for _, test := range tests {
		code, err := RatioToCode(test.ratio)
		if test.err != nil {
			assert.ErrorIs(t, err, test.err, "ratio %v", test.ratio)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, test.want, code, "ratio %v", test.ratio)
	}
}

func TestMilliTeslaConversion(t *testing.T) {
	tests := []struct {
		r    Range
		mt   float64
		code int
	}{
		{RangeFull, 100, 770},
		{RangeFull, -50, -385},
		{RangeShort, 50, 770},
		{RangeExtraShort, 25, 770},
		{RangeExtraShort, -66.4, -2045},
		{RangeFull, 1, 7},
		{RangeFull, -1, -7},
		{RangeShort, 0.99, 15},
	}
	for _, test := range tests {
		t.Run(test.r.String(), func(t *testing.T) {
			code, err := MilliTeslaToCode(test.mt, test.r)
			require.NoError(t, err)
			assert.Equal(t, test.code, code)
			assert.InDelta(t, test.mt, CodeToMilliTesla(code, test.r), 1/test.r.Scale())
		})
	}

	_, err := MilliTeslaToCode(300, RangeFull)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = MilliTeslaToCode(10, Range(2))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseRange(t *testing.T) {
	for _, r := range []Range{RangeFull, RangeShort, RangeExtraShort} {
		parsed, err := ParseRange(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseRange("huge")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, Range(2).Valid())
}

func TestWindowValidate(t *testing.T) {
	ok := Window{XH: 100, XL: -100, YH: 0, YL: 0, ZH: MaxCode, ZL: MinCode}
	assert.NoError(t, ok.Validate())

	reversed := Window{XH: 100, XL: -100, YH: -5, YL: 5}
	assert.ErrorIs(t, reversed.Validate(), ErrThresholdOrder)

	outside := Window{XH: 4000}
	assert.ErrorIs(t, outside.Validate(), ErrOutOfRange)
}

func TestWindowFits(t *testing.T) {
	w := Window{XH: 1000, XL: -1000, YH: 100, YL: -100, ZH: 100, ZL: -100}
	assert.NoError(t, w.Fits(RangeFull))
	assert.ErrorIs(t, w.Fits(RangeShort), ErrWindowTooWide)
	assert.ErrorIs(t, w.Fits(RangeExtraShort), ErrWindowTooWide)

	narrow := Window{XH: 400, XL: -400, YH: 409, YL: -410, ZH: 0, ZL: 0}
	assert.NoError(t, narrow.Fits(RangeExtraShort))
}

func TestWindowRegisterRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Window
		want Window
	}{
		{
			name: "even codes",
			in:   Window{XH: 100, XL: -100, YH: 2046, YL: MinCode, ZH: 0, ZL: -2},
			want: Window{XH: 100, XL: -100, YH: 2046, YL: MinCode, ZH: 0, ZL: -2},
		},
		{
			name: "odd codes lose the lowest bit",
			in:   Window{XH: 101, XL: -101, YH: MaxCode, YL: 1, ZH: 3, ZL: -1},
			want: Window{XH: 100, XL: -102, YH: 2046, YL: 0, ZH: 2, ZL: -2},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var c registerCache
			c.regs[regWU] = 0xC0
			c.regs[regTMode] = 0x40
			c.setWindow(test.in)
			assert.Equal(t, test.want, c.window())
			assert.Equal(t, byte(0xC0), c.regs[regWU]&0xC0, "wake-up bits untouched")
			assert.Equal(t, byte(0x40), c.regs[regTMode]&0xC0, "test select bits untouched")
		})
	}
}

func TestWindowMilliTesla(t *testing.T) {
	w, err := WindowFromMilliTesla(RangeFull, 100, -100, 50, -50, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Window{XH: 770, XL: -770, YH: 385, YL: -385}, w)
	mt := w.MilliTesla(RangeFull)
	assert.InDelta(t, 100, mt[0], 1e-9)
	assert.InDelta(t, -50, mt[3], 1e-9)
}

func TestSampleConversions(t *testing.T) {
	s := Sample{X: 770, Y: 770, Z: 0, Temp: 1180, Range: RangeFull}
	assert.InDelta(t, 100, s.XmT(), 1e-9)
	assert.InDelta(t, 141.42, s.Norm(), 0.01)
	assert.InDelta(t, 0.7854, s.Azimuth(), 1e-4)
	assert.InDelta(t, 0, s.Polar(), 1e-9)
	assert.InDelta(t, 25, s.Celsius(), 1e-9)

	s.Range = RangeShort
	assert.InDelta(t, 50, s.XmT(), 1e-9)
}
