package pulse

import (
	"testing"

	"gpaddons-go/errcode"
	"gpaddons-go/services/hal"
	"gpaddons-go/services/hal/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPulser_NonBlockingPulse(t *testing.T) {
	reg := fake.NewRegistry()
	p, err := Claim(reg, "pulse-test", 4, 100, true)
	require.NoError(t, err)
	pin := reg.Pin(4)
	assert.False(t, pin.Get())

	assert.True(t, p.Start(1000))
	assert.True(t, pin.Get())
	assert.False(t, p.Start(1010), "no retrigger while busy")

	p.Update(1099)
	assert.True(t, pin.Get())
	assert.True(t, p.Busy())

	p.Update(1100)
	assert.False(t, pin.Get())
	assert.False(t, p.Busy())
	assert.True(t, p.Start(1100))
	assert.Equal(t, 2, p.Count())
}

func TestPulser_ActiveLow(t *testing.T) {
	reg := fake.NewRegistry()
	p, err := Claim(reg, "pulse-test", 5, 50, false)
	require.NoError(t, err)
	pin := reg.Pin(5)
	assert.True(t, pin.Get())
	p.Start(0)
	assert.False(t, pin.Get())
	p.Update(50)
	assert.True(t, pin.Get())
}

func TestClaim_Errors(t *testing.T) {
	reg := fake.NewRegistry()
	_, err := Claim(reg, "pulse-test", hal.Unassigned, 50, true)
	assert.Equal(t, errcode.UnknownPin, errcode.Of(err))
}
