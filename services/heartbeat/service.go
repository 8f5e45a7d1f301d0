// Package heartbeat publishes a periodic liveness message on status/heartbeat.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/types"
)

var (
	Topic                = bus.T("status", "heartbeat")
	topicConfigHeartbeat = bus.T("config", "heartbeat")
)

const DefaultInterval = time.Second

type Service struct {
	Interval time.Duration
	// Active, when set, reports how many add-ons are running.
	Active func() int
	Log    *slog.Logger

	start time.Time
	seq   uint32
}

func (s *Service) beat(conn *bus.Connection, now time.Time) {
	s.seq++
	v := types.HeartbeatValue{Seq: s.seq, UptimeMs: now.Sub(s.start).Milliseconds()}
	if s.Active != nil {
		v.Addons = s.Active()
	}
	conn.Publish(conn.NewMessage(Topic, v, false))
	s.Log.Debug("heartbeat", "seq", v.Seq, "uptime_ms", v.UptimeMs, "addons", v.Addons)
}

// interval extracts a new period from a config payload: a time.Duration, or
// the object form {"interval": seconds}.
func interval(p any) (time.Duration, bool) {
	switch v := p.(type) {
	case time.Duration:
		return v, v > 0
	case map[string]any:
		if f, ok := v["interval"].(float64); ok && f > 0 {
			return time.Duration(f * float64(time.Second)), true
		}
	}
	return 0, false
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Log.Info("heartbeat service stopping")
			return
		case t := <-tick.C:
			s.beat(conn, t)
		case msg := <-cfgSub.Channel():
			d, ok := interval(msg.Payload)
			if !ok {
				s.Log.Warn("ignored heartbeat config", "payload", msg.Payload)
				continue
			}
			s.Interval = d
			tick.Reset(d)
			s.Log.Info("heartbeat interval set", "interval", d)
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Log == nil {
		s.Log = slog.Default()
	}
	s.Log = s.Log.With("service", "heartbeat")
	s.start = time.Now()
	go s.serviceLoop(ctx, conn)
	return nil
}
