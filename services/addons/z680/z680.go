// Package z680 drives the wired remote of a Logitech Z680 speaker system.
// While the modifier buttons are held the dpad becomes the remote: up and
// down step the volume (repeating while held), left mutes and right toggles
// power.
package z680

import (
	"context"
	"log/slog"
	"time"

	"gpaddons-go/services/addons"
	"gpaddons-go/services/addons/pulse"
	"gpaddons-go/services/config"
	"gpaddons-go/services/hal"
	"gpaddons-go/types"

	"golang.org/x/time/rate"
)

const Name = "z680"

const (
	defaultPulseMs  = 50
	defaultRepeatMs = 150
)

// key is one remote button.
type key struct {
	name   string
	dpad   uint8
	repeat bool
	out    *pulse.Pulser
	lim    *rate.Limiter
	held   bool
}

type Addon struct {
	env  *addons.Env
	opts config.Z680Options
	log  *slog.Logger
	pub  addons.Publisher

	keys     []*key
	state    hal.GPIOHandle
	powered  bool
	modifier uint32
}

var _ addons.Addon = (*Addon)(nil)

func New(env *addons.Env) *Addon {
	return &Addon{
		env:  env,
		opts: env.Options.Z680,
		log:  env.Logger(Name),
		pub:  addons.NewPublisher(env.Conn, Name),
	}
}

func (a *Addon) Name() string    { return Name }
func (a *Addon) Available() bool { return a.opts.Enabled && a.opts.ButtonMask != 0 }

// PoweredOn reports the last sensed power state.
func (a *Addon) PoweredOn() bool { return a.powered }

func (a *Addon) Setup(ctx context.Context) error {
	o := a.opts
	pulseMs := o.PulseMs
	if pulseMs == 0 {
		pulseMs = defaultPulseMs
	}
	repeatMs := o.RepeatMs
	if repeatMs == 0 {
		repeatMs = defaultRepeatMs
	}
	every := rate.Every(time.Duration(repeatMs) * time.Millisecond)

	outs := []struct {
		name   string
		pin    int
		dpad   uint8
		repeat bool
	}{
		{"volume_up", o.VolumeUpPin, types.DpadUp, true},
		{"volume_down", o.VolumeDownPin, types.DpadDown, true},
		{"mute", o.MutePin, types.DpadLeft, false},
		{"power", o.PowerPin, types.DpadRight, false},
	}
	for _, out := range outs {
		if !hal.Assigned(out.pin) {
			continue
		}
		p, err := pulse.Claim(a.env.HAL, Name, out.pin, pulseMs, true)
		if err != nil {
			a.log.Warn("remote output unavailable", "key", out.name, "pin", out.pin, "err", err)
			continue
		}
		k := &key{name: out.name, dpad: out.dpad, repeat: out.repeat, out: p}
		if out.repeat {
			k.lim = rate.NewLimiter(every, 1)
		}
		a.keys = append(a.keys, k)
	}

	if hal.Assigned(o.PowerStatePin) {
		ph, err := a.env.HAL.ClaimPin(Name, o.PowerStatePin, hal.FuncGPIOIn)
		if err != nil {
			a.log.Warn("power state pin unavailable", "pin", o.PowerStatePin, "err", err)
		} else {
			a.state = ph.AsGPIO()
			_ = a.state.ConfigureInput(hal.PullUp)
			a.powered = !a.state.Get()
			a.pub.Publish(types.PowerValue{On: a.powered}, true, "power")
		}
	}

	a.modifier = uint32(o.ButtonMask)
	a.log.Info("z680 ready", "keys", len(a.keys), "state", a.state != nil)
	return nil
}

// Preprocess samples the power state line (low means on).
func (a *Addon) Preprocess() {
	if a.state == nil {
		return
	}
	on := !a.state.Get()
	if on != a.powered {
		a.powered = on
		a.log.Info("power state changed", "on", on)
		a.pub.Publish(types.PowerValue{On: on}, true, "power")
	}
}

func (a *Addon) Process() {
	now := a.env.Now()
	st := a.env.Gamepad.State()
	engaged := st.Buttons&a.modifier == a.modifier

	for _, k := range a.keys {
		k.out.Update(now)
		down := engaged && st.Dpad&k.dpad != 0
		edge := down && !k.held
		k.held = down
		if !down {
			continue
		}
		switch {
		case k.repeat:
			if k.out.Busy() || !k.lim.AllowN(time.UnixMilli(now), 1) {
				continue
			}
		case !edge:
			continue
		}
		if k.out.Start(now) {
			a.pub.Publish(types.PulseValue{Pin: k.out.Pin(), DurationMs: k.out.DurationMs()}, false, "pulse", k.name)
		}
	}
}
