package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp_SwapsBounds(t *testing.T) {
	assert.Equal(t, 5, Clamp(5, 10, 0))
	assert.Equal(t, 10, Clamp(50, 10, 0))
	assert.Equal(t, 0, Clamp(-3, 0, 10))
}

func TestStepUpDown_Saturate(t *testing.T) {
	v, sat := StepUp[uint8](250, 5, 255)
	assert.Equal(t, uint8(255), v)
	assert.True(t, sat)

	v, sat = StepUp[uint8](100, 5, 255)
	assert.Equal(t, uint8(105), v)
	assert.False(t, sat)

	v, sat = StepUp[uint8](120, 5, 100) // already above ceiling
	assert.Equal(t, uint8(100), v)
	assert.True(t, sat)

	v, sat = StepDown[uint8](3, 5, 0)
	assert.Equal(t, uint8(0), v)
	assert.True(t, sat)

	v, sat = StepDown[uint8](5, 5, 0)
	assert.Equal(t, uint8(0), v)
	assert.True(t, sat)

	v, sat = StepDown[uint8](6, 5, 0)
	assert.Equal(t, uint8(1), v)
	assert.False(t, sat)
}

func TestPercentMapping(t *testing.T) {
	assert.Equal(t, uint8(255), PercentToByte(100))
	assert.Equal(t, uint8(255), PercentToByte(150))
	assert.Equal(t, uint8(127), PercentToByte(50))
	assert.Equal(t, uint8(0), PercentToByte(0))

	for p := uint8(0); p <= 100; p++ {
		assert.Equal(t, p, ByteToPercent(PercentToByte(p)), "percent %d", p)
	}
}

func TestSquareAndMap(t *testing.T) {
	assert.Equal(t, uint16(65025), Square(255))
	assert.Equal(t, uint16(0), Square(0))
	assert.Equal(t, uint16(0xFFFF), MapU16(65025, 0, 65025, 0, 0xFFFF))
	assert.Equal(t, uint16(0), MapU16(10, 20, 30, 0, 100))
}
