package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/services/config"
	"gpaddons-go/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func linkOpts() config.LinkOptions {
	return config.LinkOptions{
		Enabled:   true,
		Transport: "uart",
		Forward:   []string{"addons/#"},
		PingMs:    50,
	}
}

// withDial installs a UARTDial backed by net.Pipe and returns the remote ends.
func withDial(t *testing.T) <-chan net.Conn {
	t.Helper()
	prev := UARTDial
	t.Cleanup(func() { UARTDial = prev })
	remotes := make(chan net.Conn, 4)
	UARTDial = func(ctx context.Context, _ config.LinkOptions) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remotes <- rc
		return lc, nil
	}
	return remotes
}

// peer answers pings and reports pub frames.
func peer(c net.Conn) <-chan PubFrame {
	out := make(chan PubFrame, 16)
	go func() {
		defer close(out)
		rd := newFramedReader(c)
		wr := newFramedWriter(c)
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				return
			}
			switch f.Type {
			case framePing:
				if wr.WriteFrame(Frame{Type: framePong}) != nil {
					return
				}
			case framePub:
				var p PubFrame
				if json.Unmarshal(f.Payload, &p) == nil {
					out <- p
				}
			}
		}
	}()
	return out
}

func waitState(t *testing.T, sub *bus.Subscription, level, status string, d time.Duration) State {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case m := <-sub.Channel():
			st, ok := m.Payload.(State)
			require.True(t, ok, "state payload %T", m.Payload)
			if st.Level == level && st.Status == status {
				return st
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %s/%s", level, status)
			return State{}
		}
	}
}

func waitPub(t *testing.T, frames <-chan PubFrame, topic string) PubFrame {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case p, ok := <-frames:
			require.True(t, ok, "link closed")
			if p.Topic == topic {
				return p
			}
		case <-deadline:
			t.Fatalf("no frame for %s", topic)
			return PubFrame{}
		}
	}
}

func TestBridge_ForwardsRetainedAndLive(t *testing.T) {
	remotes := withDial(t)
	b := bus.NewBus(32)
	conn := b.NewConnection("bridge")
	app := b.NewConnection("app")
	states := app.Subscribe(StateTopic)

	app.Publish(app.NewMessage(bus.T("addons", "coin_leds", "credits"), types.CreditValue{Count: 3}, true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, quietLog())
	waitState(t, states, "idle", "awaiting_config", time.Second)

	app.Publish(app.NewMessage(config.Topic("link"), linkOpts(), true))
	waitState(t, states, "up", "link_established", time.Second)

	var rc net.Conn
	select {
	case rc = <-remotes:
	case <-time.After(time.Second):
		t.Fatal("no dial")
	}
	frames := peer(rc)

	p := waitPub(t, frames, "addons/coin_leds/credits")
	assert.True(t, p.Retained)
	assert.Equal(t, map[string]any{"count": float64(3)}, p.Payload)

	app.Publish(app.NewMessage(bus.T("addons", "z680", "pulse", "mute"), types.PulseValue{Pin: 6, DurationMs: 50}, false))
	p = waitPub(t, frames, "addons/z680/pulse/mute")
	assert.False(t, p.Retained)

	// Topics outside the filters stay local.
	app.Publish(app.NewMessage(bus.T("config", "addons", "z680"), "x", false))
	app.Publish(app.NewMessage(bus.T("addons", "z680", "power"), types.PowerValue{On: true}, true))
	p = waitPub(t, frames, "addons/z680/power")
	assert.Equal(t, map[string]any{"on": true}, p.Payload)
}

func TestBridge_LinkLossDegrades(t *testing.T) {
	remotes := withDial(t)
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge")
	states := conn.Subscribe(StateTopic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, quietLog())

	conn.Publish(conn.NewMessage(config.Topic("link"), linkOpts(), true))
	waitState(t, states, "up", "link_established", time.Second)

	rc := <-remotes
	_ = rc.Close()
	st := waitState(t, states, "degraded", "link_lost_retrying", time.Second)
	assert.NotEmpty(t, st.Error)

	// Redial after backoff.
	waitState(t, states, "up", "link_established", 2*time.Second)
}

func TestBridge_UnknownTransport(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge")
	states := conn.Subscribe(StateTopic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, quietLog())
	waitState(t, states, "idle", "awaiting_config", time.Second)

	cfg := linkOpts()
	cfg.Transport = "bogus"
	conn.Publish(conn.NewMessage(config.Topic("link"), cfg, false))
	waitState(t, states, "error", "transport_init_failed", time.Second)
}

func TestBridge_RetainedConfigBeforeStart(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge")
	states := conn.Subscribe(StateTopic)

	cfg := linkOpts()
	cfg.Transport = "bogus"
	conn.Publish(conn.NewMessage(config.Topic("link"), cfg, true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, quietLog())
	waitState(t, states, "error", "transport_init_failed", time.Second)
}

func TestBridge_DisabledAndYAMLConfig(t *testing.T) {
	remotes := withDial(t)
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge")
	states := conn.Subscribe(StateTopic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, quietLog())
	// Live config is only seen once the service has subscribed.
	waitState(t, states, "idle", "awaiting_config", time.Second)

	conn.Publish(conn.NewMessage(config.Topic("link"), config.LinkOptions{}, false))
	waitState(t, states, "idle", "disabled", time.Second)

	conn.Publish(conn.NewMessage(config.Topic("link"), "enabled: true\nforward: [\"addons/#\"]\n", false))
	waitState(t, states, "up", "link_established", time.Second)
	peer(<-remotes)

	conn.Publish(conn.NewMessage(config.Topic("link"), 42, false))
	waitState(t, states, "error", "config_decode_failed", time.Second)
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"addons/#", "/addons/+/credits/"})
	require.NoError(t, err)
	assert.Equal(t, []bus.Topic{{"addons", "#"}, {"addons", "+", "credits"}}, got)

	_, err = parseFilters(nil)
	assert.Error(t, err)
	_, err = parseFilters([]string{"a/#/b"})
	assert.Error(t, err)
	_, err = parseFilters([]string{"//"})
	assert.Error(t, err)
}

func TestFraming_RoundTrip(t *testing.T) {
	lc, rc := net.Pipe()
	defer lc.Close()
	defer rc.Close()

	go func() { _ = newFramedWriter(lc).WriteFrame(Frame{Type: framePub, Payload: []byte("hello")}) }()
	f, err := newFramedReader(rc).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, framePub, f.Type)
	assert.Equal(t, []byte("hello"), f.Payload)

	err = newFramedWriter(io.Discard).WriteFrame(Frame{Payload: make([]byte, 0x10000)})
	assert.Error(t, err)
}
