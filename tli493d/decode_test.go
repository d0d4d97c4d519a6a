package tli493d

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeFieldRoundTrip(t *testing.T) {
	for v := MinCode; v <= MaxCode; v++ {
		upper, lower := encode(int16(v), true)
		assert.Equal(t, lower&0x0F, byte(0), "low nibble must stay clear for %d", v)
		if !assert.Equal(t, int16(v), decode(upper, lower, true)) {
			return
		}
	}
}

func TestDecodeTemperatureRoundTrip(t *testing.T) {
	for v := MinCode; v <= MaxCode; v += 4 {
		upper, lower := encode(int16(v), false)
		assert.Equal(t, lower&0x3F, byte(0))
		if !assert.Equal(t, int16(v), decode(upper, lower, false)) {
			return
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		upper   byte
		lower   byte
		isField bool
		want    int16
	}{
		{"zero", 0x00, 0x00, true, 0},
		{"max field", 0x7F, 0xF0, true, 2047},
		{"min field", 0x80, 0x00, true, -2048},
		{"minus one", 0xFF, 0xF0, true, -1},
		{"foreign low nibble ignored", 0x01, 0x2F, true, 0x12},
		{"temperature 25C", 0x49, 0xC0, false, 1180},
		{"temperature foreign bits ignored", 0x49, 0xFF, false, 1180},
		{"negative temperature", 0xFF, 0xC0, false, -4},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, decode(test.upper, test.lower, test.isField))
		})
	}
}

func TestSignExtend(t *testing.T) {
	assert.Equal(t, -1, signExtend(0xFFF, 12))
	assert.Equal(t, 2047, signExtend(0x7FF, 12))
	assert.Equal(t, -1024, signExtend(0x400, 11))
	assert.Equal(t, 5, signExtend(0x1005, 12))
}
