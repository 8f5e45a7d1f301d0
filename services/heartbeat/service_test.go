package heartbeat

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, sub *bus.Subscription, d time.Duration) types.HeartbeatValue {
	t.Helper()
	select {
	case m := <-sub.Channel():
		v, ok := m.Payload.(types.HeartbeatValue)
		require.True(t, ok, "payload %T", m.Payload)
		return v
	case <-time.After(d):
		t.Fatal("no heartbeat")
		return types.HeartbeatValue{}
	}
}

func TestHeartbeat_PublishesSequence(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("hb")
	sub := conn.Subscribe(Topic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &Service{
		Interval: 10 * time.Millisecond,
		Active:   func() int { return 2 },
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	require.NoError(t, s.Start(ctx, conn))

	first := next(t, sub, time.Second)
	second := next(t, sub, time.Second)
	assert.Equal(t, uint32(1), first.Seq)
	assert.Equal(t, uint32(2), second.Seq)
	assert.Equal(t, 2, second.Addons)
	assert.GreaterOrEqual(t, second.UptimeMs, first.UptimeMs)
}

func TestHeartbeat_IntervalFromConfig(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("hb")
	sub := conn.Subscribe(Topic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &Service{Interval: time.Hour, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	require.NoError(t, s.Start(ctx, conn))

	// Wait for the service loop to subscribe.
	require.Eventually(t, func() bool {
		conn.Publish(conn.NewMessage(topicConfigHeartbeat, map[string]any{"interval": 0.01}, false))
		select {
		case <-sub.Channel():
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, time.Millisecond)
}

func TestInterval(t *testing.T) {
	d, ok := interval(250 * time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, d)

	d, ok = interval(map[string]any{"interval": 2.0})
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	_, ok = interval(map[string]any{"interval": -1.0})
	assert.False(t, ok)
	_, ok = interval("fast")
	assert.False(t, ok)
}
