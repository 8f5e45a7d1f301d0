// Package pccontrol presses a PC's front-panel power button from the
// cabinet: either a dedicated switch or a button combination on the pad.
package pccontrol

import (
	"context"
	"log/slog"

	"gpaddons-go/errcode"
	"gpaddons-go/services/addons"
	"gpaddons-go/services/addons/pulse"
	"gpaddons-go/services/config"
	"gpaddons-go/services/hal"
	"gpaddons-go/types"
)

const Name = "pc_control"

const defaultPulseMs = 100

type Addon struct {
	env  *addons.Env
	opts config.PCControlOptions
	log  *slog.Logger
	pub  addons.Publisher

	power *pulse.Pulser
	sw    hal.GPIOHandle
	combo uint32
	last  bool
}

var _ addons.Addon = (*Addon)(nil)

func New(env *addons.Env) *Addon {
	return &Addon{
		env:  env,
		opts: env.Options.PCControl,
		log:  env.Logger(Name),
		pub:  addons.NewPublisher(env.Conn, Name),
	}
}

func (a *Addon) Name() string { return Name }

func (a *Addon) Available() bool {
	return a.opts.Enabled && hal.Assigned(a.opts.PowerPin)
}

func (a *Addon) Setup(ctx context.Context) error {
	dur := a.opts.PulseMs
	if dur == 0 {
		dur = defaultPulseMs
	}
	p, err := pulse.Claim(a.env.HAL, Name, a.opts.PowerPin, dur, true)
	if err != nil {
		return errcode.Wrap(errcode.Of(err), "pc_control power pin", err)
	}
	a.power = p

	if hal.Assigned(a.opts.SwitchPin) {
		ph, err := a.env.HAL.ClaimPin(Name, a.opts.SwitchPin, hal.FuncGPIOIn)
		if err != nil {
			a.log.Warn("power switch unavailable", "pin", a.opts.SwitchPin, "err", err)
		} else {
			a.sw = ph.AsGPIO()
			_ = a.sw.ConfigureInput(hal.PullUp)
		}
	}
	a.combo = uint32(a.opts.ButtonMask1 | a.opts.ButtonMask2)
	a.log.Info("pc control ready", "pin", a.opts.PowerPin, "switch", a.sw != nil, "combo", a.combo)
	return nil
}

func (a *Addon) Preprocess() {}

// Process starts a power pulse on the rising edge of the switch or combo.
func (a *Addon) Process() {
	now := a.env.Now()
	a.power.Update(now)

	active := a.switchPressed() || a.comboHeld()
	if active && !a.last && a.power.Start(now) {
		a.log.Info("power button pressed", "pin", a.power.Pin())
		a.pub.Publish(types.PulseValue{Pin: a.power.Pin(), DurationMs: a.power.DurationMs()}, false, "pulse", "power")
	}
	a.last = active
}

func (a *Addon) switchPressed() bool {
	return a.sw != nil && !a.sw.Get() // active low
}

func (a *Addon) comboHeld() bool {
	if a.combo == 0 {
		return false
	}
	return a.env.Gamepad.State().Buttons&a.combo == a.combo
}
