package gamepad

import (
	"testing"

	"gpaddons-go/services/config"
	"gpaddons-go/services/hal"
	"gpaddons-go/services/hal/fake"
	"gpaddons-go/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_PressRelease(t *testing.T) {
	var m Manual
	m.Press(types.MaskS1 | types.MaskA1)
	m.PressDpad(types.DpadUp)
	assert.Equal(t, types.GamepadState{Buttons: types.MaskS1 | types.MaskA1, Dpad: types.DpadUp}, m.State())

	m.Release(types.MaskA1)
	m.ReleaseDpad(types.DpadUp)
	assert.Equal(t, types.GamepadState{Buttons: types.MaskS1}, m.State())
}

func TestGPIO_ActiveLowPullUp(t *testing.T) {
	reg := fake.NewRegistry()
	g := NewGPIO(reg, config.GamepadOptions{Pins: []config.ButtonPin{
		{Pin: 20, Button: "s1"},
		{Pin: 16, Button: "start"},
		{Pin: 3, Button: "up"},
	}}, nil)

	g.Poll()
	assert.Equal(t, types.GamepadState{}, g.State(), "idle pull-ups read released")

	reg.Pin(20).Drive(false)
	reg.Pin(3).Drive(false)
	g.Poll()
	assert.Equal(t, types.GamepadState{Buttons: types.MaskS1, Dpad: types.DpadUp}, g.State())

	reg.Pin(20).Drive(true)
	reg.Pin(16).Drive(false)
	g.Poll()
	assert.Equal(t, types.GamepadState{Buttons: types.MaskS2, Dpad: types.DpadUp}, g.State())
}

func TestGPIO_SkipsBadPins(t *testing.T) {
	reg := fake.NewRegistry()
	_, err := reg.ClaimPin("other", 5, hal.FuncGPIOOut)
	require.NoError(t, err)

	g := NewGPIO(reg, config.GamepadOptions{Pins: []config.ButtonPin{
		{Pin: 5, Button: "b1"},   // taken
		{Pin: 40, Button: "b2"},  // out of range
		{Pin: 6, Button: "warp"}, // unknown
		{Pin: 7, Button: "b3"},
	}}, nil)
	assert.Len(t, g.inputs, 1)
	_, owned := reg.Owner(6)
	assert.False(t, owned)
}
