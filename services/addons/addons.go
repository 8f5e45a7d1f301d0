// Package addons runs the optional firmware modules layered on top of the
// gamepad: each add-on polls the processed button state once per loop and
// drives the pins it claimed at setup.
package addons

import (
	"context"
	"log/slog"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/services/config"
	"gpaddons-go/services/gamepad"
	"gpaddons-go/services/hal"
	"gpaddons-go/x/timex"
)

// Addon is one optional module.
type Addon interface {
	Name() string
	// Available reports whether the add-on is enabled and has what it needs.
	// Unavailable add-ons are never set up.
	Available() bool
	Setup(ctx context.Context) error
	Preprocess()
	Process()
}

// Env carries the collaborators every add-on is built from.
type Env struct {
	Options config.AddonOptions
	Store   config.Store // nil disables persistence
	Gamepad gamepad.Source
	Clock   timex.Clock
	HAL     hal.Registry
	Conn    *bus.Connection // nil disables publishing
	Log     *slog.Logger
}

// Logger returns the env logger tagged with the add-on name.
func (e *Env) Logger(addon string) *slog.Logger {
	l := e.Log
	if l == nil {
		l = slog.Default()
	}
	return l.With("addon", addon)
}

// Now reads the env clock, falling back to the system clock.
func (e *Env) Now() int64 {
	if e.Clock == nil {
		return timex.NowMs()
	}
	return e.Clock.NowMs()
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

const topicPrefix = "addons"

// Publisher emits add-on state under addons/<addon>/...
type Publisher struct {
	conn *bus.Connection
	name string
}

func NewPublisher(conn *bus.Connection, addon string) Publisher {
	return Publisher{conn: conn, name: addon}
}

// Topic builds addons/<addon>/<tokens...>.
func Topic(addon string, tokens ...any) bus.Topic {
	return bus.T(append([]any{topicPrefix, addon}, tokens...)...)
}

// Publish is a no-op without a connection.
func (p Publisher) Publish(payload any, retained bool, tokens ...any) {
	if p.conn == nil {
		return
	}
	p.conn.Publish(p.conn.NewMessage(Topic(p.name, tokens...), payload, retained))
}

// -----------------------------------------------------------------------------
// Manager
// -----------------------------------------------------------------------------

// Poller refreshes input before each tick.
type Poller interface {
	Poll()
}

// Manager owns the registered add-ons and runs them in registration order.
type Manager struct {
	log    *slog.Logger
	input  Poller
	addons []Addon
	ready  []Addon
}

// NewManager builds a manager. input may be nil.
func NewManager(log *slog.Logger, input Poller) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log, input: input}
}

// Register keeps a only if it is available.
func (m *Manager) Register(a Addon) bool {
	if !a.Available() {
		m.log.Debug("addon unavailable", "addon", a.Name())
		return false
	}
	m.addons = append(m.addons, a)
	return true
}

// Setup sets up every registered add-on. One that fails is logged and dropped.
func (m *Manager) Setup(ctx context.Context) {
	m.ready = m.ready[:0]
	for _, a := range m.addons {
		if err := a.Setup(ctx); err != nil {
			m.log.Warn("addon setup failed", "addon", a.Name(), "err", err)
			continue
		}
		m.log.Info("addon ready", "addon", a.Name())
		m.ready = append(m.ready, a)
	}
}

// Active returns the add-ons that completed setup.
func (m *Manager) Active() []Addon {
	return append([]Addon(nil), m.ready...)
}

// Tick polls input, then runs Preprocess on all add-ons and Process on all.
func (m *Manager) Tick() {
	if m.input != nil {
		m.input.Poll()
	}
	for _, a := range m.ready {
		a.Preprocess()
	}
	for _, a := range m.ready {
		a.Process()
	}
}

// Run ticks every period until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = time.Millisecond
	}
	tick := time.NewTicker(period)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("addons stopping")
			return
		case <-tick.C:
			m.Tick()
		}
	}
}
