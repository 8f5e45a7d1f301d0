package relay

import (
	"log/slog"
	"testing"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/errcode"
	"gpaddons-go/services/addons"
	"gpaddons-go/services/hal"
	"gpaddons-go/services/hal/fake"
	"gpaddons-go/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_ActiveLowFollowsButtons(t *testing.T) {
	reg := fake.NewRegistry()
	r := New(reg, "relay-test", addons.Publisher{}, slog.Default())
	require.NoError(t, r.Add("start", 14, types.MaskA2, false))
	require.NoError(t, r.Add("coin", 15, types.MaskA1, false))

	start, coin := reg.Pin(14), reg.Pin(15)
	assert.True(t, start.Output())
	assert.True(t, start.Get(), "idle high")
	assert.True(t, coin.Get())

	r.Update(types.MaskA2)
	assert.False(t, start.Get())
	assert.True(t, coin.Get())

	r.Update(types.MaskA2 | types.MaskA1)
	assert.False(t, start.Get())
	assert.False(t, coin.Get())

	r.Update(0)
	assert.True(t, start.Get())
	assert.True(t, coin.Get())
	assert.Equal(t, types.MaskA1|types.MaskA2, r.Mask())
}

func TestRelay_ActiveHighAndNoRewrite(t *testing.T) {
	reg := fake.NewRegistry()
	r := New(reg, "relay-test", addons.Publisher{}, slog.Default())
	require.NoError(t, r.Add("start", 14, types.MaskA2, true))

	p := reg.Pin(14)
	assert.False(t, p.Get())
	r.Update(types.MaskA2)
	r.Update(types.MaskA2 | types.MaskB1) // unrelated bit
	assert.True(t, p.Get())
	assert.Equal(t, 1, p.Writes())
}

func TestRelay_IgnoresUnassignedAndReportsClaimErrors(t *testing.T) {
	reg := fake.NewRegistry()
	r := New(reg, "relay-test", addons.Publisher{}, slog.Default())
	assert.NoError(t, r.Add("start", hal.Unassigned, types.MaskA2, false))
	assert.NoError(t, r.Add("coin", 15, 0, false))
	assert.Equal(t, 0, r.Len())

	_, err := reg.ClaimPin("other", 16, hal.FuncPWM)
	require.NoError(t, err)
	err = r.Add("start", 16, types.MaskA2, false)
	assert.Equal(t, errcode.PinInUse, errcode.Of(err))
}

func TestRelay_PublishesChanges(t *testing.T) {
	reg := fake.NewRegistry()
	b := bus.NewBus(8)
	conn := b.NewConnection("t")
	sub := conn.Subscribe(addons.Topic("coin_leds", "relay", "+"))

	r := New(reg, "relay-test", addons.NewPublisher(conn, "coin_leds"), slog.Default())
	require.NoError(t, r.Add("coin", 15, types.MaskA1, false))
	r.Update(types.MaskA1)

	select {
	case m := <-sub.Channel():
		assert.Equal(t, "addons/coin_leds/relay/coin", m.Topic.String())
		assert.Equal(t, types.RelayValue{Pin: 15, Active: true, High: false}, m.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no relay event")
	}
}

func TestRelay_ReleaseDrivesIdle(t *testing.T) {
	reg := fake.NewRegistry()
	r := New(reg, "relay-test", addons.Publisher{}, slog.Default())
	require.NoError(t, r.Add("coin", 15, types.MaskA1, false))
	r.Update(types.MaskA1)
	r.Release()
	assert.True(t, reg.Pin(15).Get())
	_, owned := reg.Owner(15)
	assert.False(t, owned)
}
