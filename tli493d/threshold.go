package tli493d

import (
	"fmt"
	"math"
)

// Range selects the magnetic full-scale range.
type Range uint8

const (
	// RangeFull covers ±160 mT.
	RangeFull Range = 0
	// RangeShort covers ±100 mT.
	RangeShort Range = 1
	// RangeExtraShort covers ±50 mT. It puts the sensor in a test mode and
	// cannot be combined with wake-up.
	RangeExtraShort Range = 3
)

const (
	MinCode = -2048
	MaxCode = 2047
	// thresholdWidth is the stored width of a wake-up threshold; the lowest
	// bit of the 12-bit code is dropped.
	thresholdWidth = 11
)

type rangeProps struct {
	name string
	// scale in LSB/mT
	scale float64
	// halfWindow is the widest wake-up window in codes
	halfWindow int
	shortBit   byte
	extraBit   byte
}

var rangeTable = [...]rangeProps{
	RangeFull:       {name: "full", scale: 7.7, halfWindow: 3276, shortBit: 0, extraBit: 0},
	RangeShort:      {name: "short", scale: 15.4, halfWindow: 1638, shortBit: 1, extraBit: 0},
	RangeExtraShort: {name: "extrashort", scale: 30.8, halfWindow: 819, shortBit: 1, extraBit: 1},
}

func (r Range) props() (rangeProps, bool) {
	if int(r) >= len(rangeTable) || rangeTable[r].scale == 0 {
		return rangeProps{}, false
	}
	return rangeTable[r], true
}

// Valid reports whether r is one of the defined ranges.
func (r Range) Valid() bool {
	_, ok := r.props()
	return ok
}

// Scale returns the sensitivity in LSB/mT, 0 for an undefined range.
func (r Range) Scale() float64 {
	p, _ := r.props()
	return p.scale
}

// HalfWindow returns the widest wake-up window accepted in r, in codes.
func (r Range) HalfWindow() int {
	p, _ := r.props()
	return p.halfWindow
}

func (r Range) String() string {
	p, ok := r.props()
	if !ok {
		return fmt.Sprintf("range(%d)", uint8(r))
	}
	return p.name
}

// ParseRange accepts the names returned by Range.String.
func ParseRange(s string) (Range, error) {
	for _, r := range []Range{RangeFull, RangeShort, RangeExtraShort} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown range %q", ErrInvalidArgument, s)
}

func checkCode(code int) error {
	if code < MinCode || code > MaxCode {
		return fmt.Errorf("%w: code %d outside [%d, %d]", ErrOutOfRange, code, MinCode, MaxCode)
	}
	return nil
}

// RatioToCode maps a ratio of the output range in [-1, 1] to a raw code.
func RatioToCode(ratio float64) (int, error) {
	if math.IsNaN(ratio) || ratio < -1 || ratio > 1 {
		return 0, fmt.Errorf("%w: ratio %v outside [-1, 1]", ErrOutOfRange, ratio)
	}
	return min(int(math.Round(ratio*-MinCode)), MaxCode), nil
}

func CodeToRatio(code int) float64 {
	return float64(code) / -MinCode
}

// MilliTeslaToCode converts a field strength to a raw code in range r,
// truncating toward zero.
func MilliTeslaToCode(mt float64, r Range) (int, error) {
	if !r.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidArgument, r)
	}
	if math.IsNaN(mt) || math.IsInf(mt, 0) {
		return 0, fmt.Errorf("%w: %v mT", ErrOutOfRange, mt)
	}
	code := math.Trunc(mt * r.Scale())
	if code < MinCode || code > MaxCode {
		return 0, fmt.Errorf("%w: %v mT outside %s range", ErrOutOfRange, mt, r)
	}
	return int(code), nil
}

func CodeToMilliTesla(code int, r Range) float64 {
	s := r.Scale()
	if s == 0 {
		return 0
	}
	return float64(code) / s
}

// Window holds the wake-up thresholds of the three axes in raw codes.
type Window struct {
	XH, XL int
	YH, YL int
	ZH, ZL int
}

// WindowFromRatio builds a window from ratios of the output range.
func WindowFromRatio(xh, xl, yh, yl, zh, zl float64) (Window, error) {
	in := [6]float64{xh, xl, yh, yl, zh, zl}
	var out [6]int
	for i, v := range in {
		code, err := RatioToCode(v)
		if err != nil {
			return Window{}, err
		}
		out[i] = code
	}
	return windowOf(out), nil
}

// WindowFromMilliTesla builds a window from field strengths in range r.
func WindowFromMilliTesla(r Range, xh, xl, yh, yl, zh, zl float64) (Window, error) {
	in := [6]float64{xh, xl, yh, yl, zh, zl}
	var out [6]int
	for i, v := range in {
		code, err := MilliTeslaToCode(v, r)
		if err != nil {
			return Window{}, err
		}
		out[i] = code
	}
	return windowOf(out), nil
}

func windowOf(v [6]int) Window {
	return Window{XH: v[0], XL: v[1], YH: v[2], YL: v[3], ZH: v[4], ZL: v[5]}
}

func (w Window) values() [6]int {
	return [6]int{w.XH, w.XL, w.YH, w.YL, w.ZH, w.ZL}
}

func (w Window) axes() [3][2]int {
	return [3][2]int{{w.XH, w.XL}, {w.YH, w.YL}, {w.ZH, w.ZL}}
}

var axisNames = [3]string{"x", "y", "z"}

// Validate checks the codes are representable and every upper bound is at
// least its lower bound.
func (w Window) Validate() error {
	for _, v := range w.values() {
		if err := checkCode(v); err != nil {
			return err
		}
	}
	for i, a := range w.axes() {
		if a[0] < a[1] {
			return fmt.Errorf("%w: %s upper %d below lower %d", ErrThresholdOrder, axisNames[i], a[0], a[1])
		}
	}
	return nil
}

// Fits checks every axis window against the half output range of r.
func (w Window) Fits(r Range) error {
	limit := r.HalfWindow()
	for i, a := range w.axes() {
		if a[0]-a[1] > limit {
			return fmt.Errorf("%w: %s window %d exceeds %d in %s range", ErrWindowTooWide, axisNames[i], a[0]-a[1], limit, r)
		}
	}
	return nil
}

// MilliTesla converts the window bounds to mT in range r, in XH, XL, YH, YL, ZH, ZL order.
func (w Window) MilliTesla(r Range) [6]float64 {
	var out [6]float64
	for i, v := range w.values() {
		out[i] = CodeToMilliTesla(v, r)
	}
	return out
}

// thresholdFields lists the register fields of each bound in Window order.
var thresholdFields = [6][2]field{
	{fieldXH, fieldXH2},
	{fieldXL, fieldXL2},
	{fieldYH, fieldYH2},
	{fieldYL, fieldYL2},
	{fieldZH, fieldZH2},
	{fieldZL, fieldZL2},
}

func (c *registerCache) setWindow(w Window) {
	for i, v := range w.values() {
		stored := (v >> 1) & (1<<thresholdWidth - 1)
		c.set(thresholdFields[i][0], byte(stored>>3))
		c.set(thresholdFields[i][1], byte(stored&0x07))
	}
}

func (c *registerCache) window() Window {
	var out [6]int
	for i, f := range thresholdFields {
		raw := int(c.get(f[0]))<<3 | int(c.get(f[1]))
		out[i] = signExtend(raw, thresholdWidth) << 1
	}
	return windowOf(out)
}
