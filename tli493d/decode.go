package tli493d

const (
	fieldWidth = 12
	tempWidth  = 10
)

// decode joins an upper register with the left-aligned low bits of its channel.
// Field channels carry 12 bits (all of upper, top nibble of lower). Temperature
// carries 10 bits (all of upper, top two bits of lower) and is returned on the
// 12-bit scale.
func decode(upper, lower byte, isField bool) int16 {
	if isField {
		raw := int(upper)<<4 | int(lower>>4)
		return int16(signExtend(raw, fieldWidth))
	}
	raw := int(upper)<<2 | int(lower>>6)
	return int16(signExtend(raw, tempWidth) << 2)
}

// encode is the inverse of decode; temperature loses its two lowest bits.
func encode(value int16, isField bool) (upper, lower byte) {
	if isField {
		raw := uint16(value) & (1<<fieldWidth - 1)
		return byte(raw >> 4), byte(raw&0x0F) << 4
	}
	raw := uint16(value>>2) & (1<<tempWidth - 1)
	return byte(raw >> 2), byte(raw&0x03) << 6
}

// signExtend interprets the low width bits of raw as two's complement.
func signExtend(raw int, width uint) int {
	raw &= 1<<width - 1
	if raw&(1<<(width-1)) != 0 {
		return raw - 1<<width
	}
	return raw
}
