package z680

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/services/addons"
	"gpaddons-go/services/config"
	"gpaddons-go/services/gamepad"
	"gpaddons-go/services/hal/fake"
	"gpaddons-go/types"
	"gpaddons-go/x/timex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modifier = types.MaskS1 | types.MaskA4

type harness struct {
	reg   *fake.Registry
	pad   *gamepad.Manual
	clock *timex.Manual
	conn  *bus.Connection
	a     *Addon
}

func newHarness(t *testing.T, mutate func(*config.Z680Options)) *harness {
	t.Helper()
	opts := config.Disabled()
	opts.Z680 = config.Z680Options{
		Enabled:       true,
		PowerPin:      2,
		PowerStatePin: 3,
		VolumeUpPin:   4,
		VolumeDownPin: 5,
		MutePin:       6,
		ButtonMask:    config.Mask(modifier),
		PulseMs:       50,
		RepeatMs:      150,
	}
	if mutate != nil {
		mutate(&opts.Z680)
	}
	h := &harness{
		reg:   fake.NewRegistry(),
		pad:   &gamepad.Manual{},
		clock: timex.NewManual(10_000),
		conn:  bus.NewBus(32).NewConnection("test"),
	}
	h.a = New(&addons.Env{
		Options: opts,
		Gamepad: h.pad,
		Clock:   h.clock,
		HAL:     h.reg,
		Conn:    h.conn,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.a.Preprocess()
		h.a.Process()
		h.clock.Advance(1)
	}
}

func (h *harness) count(name string) int {
	for _, k := range h.a.keys {
		if k.name == name {
			return k.out.Count()
		}
	}
	return -1
}

func TestAvailable(t *testing.T) {
	assert.True(t, newHarness(t, nil).a.Available())
	assert.False(t, newHarness(t, func(o *config.Z680Options) { o.Enabled = false }).a.Available())
	assert.False(t, newHarness(t, func(o *config.Z680Options) { o.ButtonMask = 0 }).a.Available())
}

func TestVolume_RepeatsWhileHeld(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.a.Setup(context.Background()))

	h.pad.Press(modifier)
	h.pad.PressDpad(types.DpadUp)
	h.ticks(1)
	assert.True(t, h.reg.Pin(4).Get(), "first press pulses at once")

	h.ticks(399)
	assert.Equal(t, 3, h.count("volume_up"))
	assert.Equal(t, 0, h.count("volume_down"))

	h.pad.ReleaseDpad(types.DpadUp)
	h.ticks(200)
	assert.Equal(t, 3, h.count("volume_up"))
	assert.False(t, h.reg.Pin(4).Get())
}

func TestMuteAndPower_EdgeOnly(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.a.Setup(context.Background()))

	h.pad.Press(modifier)
	h.pad.PressDpad(types.DpadLeft)
	h.ticks(500)
	assert.Equal(t, 1, h.count("mute"))

	h.pad.ReleaseDpad(types.DpadLeft)
	h.pad.PressDpad(types.DpadRight)
	h.ticks(10)
	assert.Equal(t, 1, h.count("power"))
	assert.True(t, h.reg.Pin(2).Get())
}

func TestModifierRequired(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.a.Setup(context.Background()))

	h.pad.Press(types.MaskS1) // only half the modifier
	h.pad.PressDpad(types.DpadUp | types.DpadLeft)
	h.ticks(200)
	assert.Equal(t, 0, h.count("volume_up"))
	assert.Equal(t, 0, h.count("mute"))
}

func TestPowerState_PublishedOnChange(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.a.Setup(context.Background()))
	assert.False(t, h.a.PoweredOn(), "pulled-up line reads off")

	h.reg.Pin(3).Drive(false)
	h.ticks(1)
	assert.True(t, h.a.PoweredOn())

	sub := h.conn.Subscribe(addons.Topic(Name, "power"))
	select {
	case m := <-sub.Channel():
		assert.Equal(t, types.PowerValue{On: true}, m.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no retained power state")
	}
}

func TestSetup_SkipsUnassignedOutputs(t *testing.T) {
	h := newHarness(t, func(o *config.Z680Options) {
		o.MutePin = -1
		o.PowerPin = -1
		o.PowerStatePin = -1
	})
	require.NoError(t, h.a.Setup(context.Background()))
	assert.Len(t, h.a.keys, 2)
	assert.Nil(t, h.a.state)
}
