package timex

import (
	"sync/atomic"
	"time"
)

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Clock is the monotonic millisecond source used by every polling loop.
type Clock interface {
	NowMs() int64
}

// System reads the wall clock.
type System struct{}

func (System) NowMs() int64 { return NowMs() }

// Manual is a clock advanced explicitly by tests and the simulator.
type Manual struct {
	ms atomic.Int64
}

func NewManual(startMs int64) *Manual {
	m := &Manual{}
	m.ms.Store(startMs)
	return m
}

func (m *Manual) NowMs() int64          { return m.ms.Load() }
func (m *Manual) Set(ms int64)          { m.ms.Store(ms) }
func (m *Manual) Advance(d int64) int64 { return m.ms.Add(d) }

// Reached reports whether deadline has passed at now.
func Reached(now, deadline int64) bool { return now >= deadline }

// Debouncer suppresses repeated triggers inside a minimum interval.
// The first call always passes. IntervalMs <= 0 disables suppression.
type Debouncer struct {
	IntervalMs int64
	last       int64
	armed      bool
}

// Allow reports whether a trigger at now is accepted, recording it if so.
// A trigger is accepted only when strictly more than IntervalMs elapsed.
func (d *Debouncer) Allow(now int64) bool {
	if d.IntervalMs <= 0 {
		return true
	}
	if d.armed && now-d.last <= d.IntervalMs {
		return false
	}
	d.last = now
	d.armed = true
	return true
}

// Reset forgets the last accepted trigger.
func (d *Debouncer) Reset() { d.armed = false }
