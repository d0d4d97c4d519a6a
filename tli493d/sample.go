package tli493d

import "math"

const (
	tempOffset = 1180
	tempMult   = 0.24
	temp25     = 25.0
)

// Sample is one decoded measurement in raw codes, tagged with the range
// active when it was captured.
type Sample struct {
	X, Y, Z int16
	Temp    int16
	Range   Range
}

func (s Sample) XmT() float64 {
	return CodeToMilliTesla(int(s.X), s.Range)
}

func (s Sample) YmT() float64 {
	return CodeToMilliTesla(int(s.Y), s.Range)
}

func (s Sample) ZmT() float64 {
	return CodeToMilliTesla(int(s.Z), s.Range)
}

// Norm is the magnitude of the field vector in mT.
func (s Sample) Norm() float64 {
	x, y, z := s.XmT(), s.YmT(), s.ZmT()
	return math.Sqrt(x*x + y*y + z*z)
}

// Azimuth is atan2(y, x) in radians.
func (s Sample) Azimuth() float64 {
	return math.Atan2(s.YmT(), s.XmT())
}

// Polar is the elevation of the field vector above the xy plane in radians.
func (s Sample) Polar() float64 {
	x, y := s.XmT(), s.YmT()
	return math.Atan2(s.ZmT(), math.Sqrt(x*x+y*y))
}

// Celsius converts the temperature code.
func (s Sample) Celsius() float64 {
	return (float64(s.Temp)-tempOffset)*tempMult + temp25
}
