package pccontrol

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"gpaddons-go/services/addons"
	"gpaddons-go/services/config"
	"gpaddons-go/services/gamepad"
	"gpaddons-go/services/hal"
	"gpaddons-go/services/hal/fake"
	"gpaddons-go/types"
	"gpaddons-go/x/timex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	reg   *fake.Registry
	pad   *gamepad.Manual
	clock *timex.Manual
	a     *Addon
}

func newHarness(t *testing.T, mutate func(*config.PCControlOptions)) *harness {
	t.Helper()
	opts := config.Disabled()
	opts.PCControl = config.PCControlOptions{
		Enabled:     true,
		PowerPin:    4,
		SwitchPin:   5,
		ButtonMask1: config.Mask(types.MaskS1),
		ButtonMask2: config.Mask(types.MaskS2),
		PulseMs:     100,
	}
	if mutate != nil {
		mutate(&opts.PCControl)
	}
	h := &harness{reg: fake.NewRegistry(), pad: &gamepad.Manual{}, clock: timex.NewManual(0)}
	h.a = New(&addons.Env{
		Options: opts,
		Gamepad: h.pad,
		Clock:   h.clock,
		HAL:     h.reg,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.a.Process()
		h.clock.Advance(1)
	}
}

func TestAvailable(t *testing.T) {
	assert.True(t, newHarness(t, nil).a.Available())
	assert.False(t, newHarness(t, func(o *config.PCControlOptions) { o.Enabled = false }).a.Available())
	assert.False(t, newHarness(t, func(o *config.PCControlOptions) { o.PowerPin = hal.Unassigned }).a.Available())
}

func TestCombo_PulsesOnceAndReleases(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.a.Setup(context.Background()))
	power := h.reg.Pin(4)
	assert.False(t, power.Get())

	h.pad.Press(types.MaskS1)
	h.ticks(5)
	assert.False(t, power.Get(), "half a combo does nothing")

	h.pad.Press(types.MaskS2)
	h.ticks(1)
	assert.True(t, power.Get())

	h.ticks(98) // still held, still within the pulse
	assert.True(t, power.Get())
	h.ticks(2)
	assert.False(t, power.Get())

	h.ticks(300) // combo still held: no retrigger
	assert.Equal(t, 1, h.a.power.Count())

	h.pad.Release(types.MaskS2)
	h.ticks(1)
	h.pad.Press(types.MaskS2)
	h.ticks(1)
	assert.Equal(t, 2, h.a.power.Count())
}

func TestSwitch_ActiveLow(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.a.Setup(context.Background()))

	h.ticks(3)
	assert.Equal(t, 0, h.a.power.Count())

	h.reg.Pin(5).Drive(false)
	h.ticks(1)
	assert.True(t, h.reg.Pin(4).Get())
	assert.Equal(t, 1, h.a.power.Count())
}

func TestSetup_PowerPinTaken(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.reg.ClaimPin("other", 4, hal.FuncPWM)
	require.NoError(t, err)
	assert.Error(t, h.a.Setup(context.Background()))
}

func TestSetup_DefaultPulse(t *testing.T) {
	h := newHarness(t, func(o *config.PCControlOptions) { o.PulseMs = 0; o.SwitchPin = hal.Unassigned })
	require.NoError(t, h.a.Setup(context.Background()))
	assert.Equal(t, uint32(defaultPulseMs), h.a.power.DurationMs())
	assert.Nil(t, h.a.sw)
}
