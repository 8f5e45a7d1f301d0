// Package gamepad provides the processed button state that add-ons poll once
// per loop iteration.
package gamepad

import (
	"log/slog"
	"sync"

	"gpaddons-go/services/config"
	"gpaddons-go/services/hal"
	"gpaddons-go/types"
)

// Source returns the gamepad state for the current tick.
type Source interface {
	State() types.GamepadState
}

// -----------------------------------------------------------------------------
// Manual source
// -----------------------------------------------------------------------------

// Manual is driven by tests and the simulator.
type Manual struct {
	mu sync.Mutex
	s  types.GamepadState
}

func (m *Manual) State() types.GamepadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}

func (m *Manual) Set(s types.GamepadState) {
	m.mu.Lock()
	m.s = s
	m.mu.Unlock()
}

func (m *Manual) Press(mask uint32) {
	m.mu.Lock()
	m.s.Buttons |= mask
	m.mu.Unlock()
}

func (m *Manual) Release(mask uint32) {
	m.mu.Lock()
	m.s.Buttons &^= mask
	m.mu.Unlock()
}

func (m *Manual) PressDpad(mask uint8) {
	m.mu.Lock()
	m.s.Dpad |= mask
	m.mu.Unlock()
}

func (m *Manual) ReleaseDpad(mask uint8) {
	m.mu.Lock()
	m.s.Dpad &^= mask
	m.mu.Unlock()
}

// -----------------------------------------------------------------------------
// GPIO source
// -----------------------------------------------------------------------------

type input struct {
	pin    hal.GPIOHandle
	button uint32
	dpad   uint8
}

// GPIO reads board buttons wired to ground with internal pull-ups.
type GPIO struct {
	inputs []input
	state  types.GamepadState
}

const devID = "gamepad"

// NewGPIO claims every mapped pin as a pulled-up input. Pins that cannot be
// claimed are skipped with a warning.
func NewGPIO(reg hal.Registry, opts config.GamepadOptions, log *slog.Logger) *GPIO {
	if log == nil {
		log = slog.Default()
	}
	g := &GPIO{}
	for _, bp := range opts.Pins {
		in := input{}
		if m, ok := types.ButtonByName(bp.Button); ok {
			in.button = m
		} else if m, ok := types.DpadByName(bp.Button); ok {
			in.dpad = m
		} else {
			log.Warn("unknown button", "button", bp.Button, "pin", bp.Pin)
			continue
		}
		ph, err := reg.ClaimPin(devID, bp.Pin, hal.FuncGPIOIn)
		if err != nil {
			log.Warn("claim button pin", "button", bp.Button, "pin", bp.Pin, "err", err)
			continue
		}
		in.pin = ph.AsGPIO()
		if err := in.pin.ConfigureInput(hal.PullUp); err != nil {
			log.Warn("configure button pin", "pin", bp.Pin, "err", err)
			reg.ReleasePin(devID, bp.Pin)
			continue
		}
		g.inputs = append(g.inputs, in)
	}
	return g
}

// Poll samples every input. Call once per loop before the add-ons run.
func (g *GPIO) Poll() {
	var s types.GamepadState
	for _, in := range g.inputs {
		if in.pin.Get() {
			continue // active low
		}
		s.Buttons |= in.button
		s.Dpad |= in.dpad
	}
	g.state = s
}

func (g *GPIO) State() types.GamepadState { return g.state }
