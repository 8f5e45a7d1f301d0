package mathx

// MapU16 maps x in [inMin,inMax] to [outMin,outMax] with 32-bit intermediates.
// Clamps to out range if input is outside.
func MapU16(x, inMin, inMax, outMin, outMax uint16) uint16 {
	if inMax == inMin {
		return outMin
	}
	if x < inMin {
		return outMin
	}
	if x > inMax {
		return outMax
	}
	num := uint32(x-inMin) * uint32(outMax-outMin)
	den := uint32(inMax - inMin)
	return uint16(uint32(outMin) + num/den)
}

// PercentToByte maps a 0..100 option value to 0..255. 100 and above is full scale.
func PercentToByte(p uint8) uint8 {
	if p >= 100 {
		return 0xFF
	}
	return uint8(uint16(p) * 0xFF / 100)
}

// ByteToPercent is the rounded inverse of PercentToByte.
func ByteToPercent(b uint8) uint8 {
	return uint8((uint16(b)*100 + 0x7F) / 0xFF)
}

// Square returns b*b: the perceptual level used for LED output (0..65025).
func Square(b uint8) uint16 {
	return uint16(b) * uint16(b)
}
