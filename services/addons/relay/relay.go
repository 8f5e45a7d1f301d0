// Package relay mirrors gamepad button bits onto output pins so a connected
// cabinet controller sees its own coin and start inputs pressed.
package relay

import (
	"log/slog"

	"gpaddons-go/services/addons"
	"gpaddons-go/services/hal"
	"gpaddons-go/types"
)

type line struct {
	name       string
	n          int
	pin        hal.GPIOHandle
	mask       uint32
	activeHigh bool
	active     bool
}

func (l *line) level() bool { return l.active == l.activeHigh }

// Relay owns a set of output lines, each following one button mask.
type Relay struct {
	reg   hal.Registry
	owner string
	pub   addons.Publisher
	log   *slog.Logger
	lines []*line
}

func New(reg hal.Registry, owner string, pub addons.Publisher, log *slog.Logger) *Relay {
	return &Relay{reg: reg, owner: owner, pub: pub, log: log}
}

// Add claims pin as an output driven at its idle level. Unassigned pins and
// empty masks are ignored.
func (r *Relay) Add(name string, pin int, mask uint32, activeHigh bool) error {
	if !hal.Assigned(pin) || mask == 0 {
		return nil
	}
	ph, err := r.reg.ClaimPin(r.owner, pin, hal.FuncGPIOOut)
	if err != nil {
		return err
	}
	l := &line{name: name, n: pin, pin: ph.AsGPIO(), mask: mask, activeHigh: activeHigh}
	if err := l.pin.ConfigureOutput(l.level()); err != nil {
		r.reg.ReleasePin(r.owner, pin)
		return err
	}
	r.lines = append(r.lines, l)
	r.log.Debug("relay line ready", "line", name, "pin", pin, "active_high", activeHigh)
	return nil
}

// Mask is the union of every line's mask.
func (r *Relay) Mask() uint32 {
	var m uint32
	for _, l := range r.lines {
		m |= l.mask
	}
	return m
}

func (r *Relay) Len() int { return len(r.lines) }

// Update drives each line whose button state changed.
func (r *Relay) Update(buttons uint32) {
	for _, l := range r.lines {
		active := buttons&l.mask != 0
		if active == l.active {
			continue
		}
		l.active = active
		l.pin.Set(l.level())
		r.pub.Publish(types.RelayValue{Pin: l.n, Active: active, High: l.level()}, false, "relay", l.name)
	}
}

// Release drives every line idle and frees its pin.
func (r *Relay) Release() {
	for _, l := range r.lines {
		l.active = false
		l.pin.Set(l.level())
		r.reg.ReleasePin(r.owner, l.n)
	}
	r.lines = nil
}
