package leds

import (
	"log/slog"

	"gpaddons-go/services/hal"
	"gpaddons-go/x/mathx"
)

// Channel drives one LED group. It is not safe for concurrent use; the add-on
// loop is its only caller.
type Channel struct {
	name string
	pins [MaxLEDs]int
	pwm  [MaxLEDs]hal.PWMHandle

	levels  [MaxLEDs]uint16
	written [MaxLEDs]uint16
	flushed bool

	brightness    uint8
	maxBrightness uint8
	fadeIn        bool
	next          int64 // ms

	ready bool
}

func NewChannel(name string) *Channel {
	c := &Channel{name: name}
	for i := range c.pins {
		c.pins[i] = hal.Unassigned
	}
	return c
}

func (c *Channel) Name() string         { return c.name }
func (c *Channel) Ready() bool          { return c.ready }
func (c *Channel) Brightness() uint8    { return c.brightness }
func (c *Channel) MaxBrightness() uint8 { return c.maxBrightness }
func (c *Channel) FadeIn() bool         { return c.fadeIn }
func (c *Channel) Levels() [MaxLEDs]uint16 {
	return c.levels
}

// Configure claims each assigned pin as a PWM output owned by owner.
// Unassigned pins are skipped silently; pins that fail to claim are skipped
// with a warning. The channel is ready iff at least one pin was bound.
func (c *Channel) Configure(reg hal.Registry, owner string, pins []int, maxBrightness uint8, log *slog.Logger) bool {
	c.brightness = maxBrightness
	c.maxBrightness = maxBrightness
	for i := 0; i < MaxLEDs && i < len(pins); i++ {
		n := pins[i]
		if !hal.Assigned(n) {
			continue
		}
		ph, err := reg.ClaimPin(owner, n, hal.FuncPWM)
		if err != nil {
			log.Warn("led pin unavailable", "channel", c.name, "pin", n, "err", err)
			continue
		}
		pwm := ph.AsPWM()
		if err := pwm.Configure(hal.LEDFreqHz, hal.LEDTop); err != nil {
			log.Warn("led pwm configure", "channel", c.name, "pin", n, "err", err)
			reg.ReleasePin(owner, n)
			continue
		}
		c.pins[i] = n
		c.pwm[i] = pwm
		c.ready = true
	}
	return c.ready
}

func (c *Channel) reset(a *Animation, now int64) {
	a.PreviousType = a.Type
	c.next = now
	c.brightness = c.maxBrightness
	c.fadeIn = false
}

// Tick advances a by one step if a step is due and returns the levels.
// A type change resets the channel and is applied on the same call.
// Between steps the previous levels are returned unchanged.
func (c *Channel) Tick(a *Animation, now int64) [MaxLEDs]uint16 {
	if !c.ready {
		return c.levels
	}
	if a.Type != a.PreviousType {
		c.reset(a, now)
	} else if now < c.next {
		return c.levels
	}

	s, mask := a.State, a.Mask
	switch a.Type {
	case Off:
		s = StateAllOff | mask
	case Solid:
		s = StateAllOn & mask
	case Blink:
		s = ^s & mask
		c.next = now + int64(a.Speed)
	case Fade:
		s &= mask
		c.stepFade()
		c.next = now + int64(a.Speed)
	}
	a.State = s
	c.paint(s)
	return c.levels
}

// Repaint applies a new mask to a running program without advancing it.
// Blink and fade restart from their lit phase; the step schedule and the
// fade brightness are kept.
func (c *Channel) Repaint(a *Animation) {
	if !c.ready || a.Type != a.PreviousType {
		return
	}
	if a.Type == Off {
		a.State = StateAllOff | a.Mask
	} else {
		a.State = StateAllOn & a.Mask
	}
	c.paint(a.State)
}

func (c *Channel) paint(s uint8) {
	lit := mathx.Square(c.brightness)
	for i, n := range c.pins {
		if n == hal.Unassigned {
			continue
		}
		if s&(1<<i) != 0 {
			c.levels[i] = lit
		} else {
			c.levels[i] = 0
		}
	}
}

func (c *Channel) stepFade() {
	var sat bool
	if c.fadeIn {
		c.brightness, sat = mathx.StepUp(c.brightness, BrightnessStep, c.maxBrightness)
		if sat {
			c.fadeIn = false
		}
		return
	}
	c.brightness, sat = mathx.StepDown(c.brightness, BrightnessStep, 0)
	if sat {
		c.fadeIn = true
	}
}

// Display writes the last computed levels to the pins that changed.
func (c *Channel) Display() {
	if !c.ready {
		return
	}
	for i, pwm := range c.pwm {
		if pwm == nil {
			continue
		}
		if c.flushed && c.written[i] == c.levels[i] {
			continue
		}
		pwm.Set(c.levels[i])
		c.written[i] = c.levels[i]
	}
	c.flushed = true
}

// BrightnessUp raises brightness by one step, saturating at the maximum.
func (c *Channel) BrightnessUp() uint8 {
	c.brightness, _ = mathx.StepUp(c.brightness, BrightnessStep, c.maxBrightness)
	return c.brightness
}

// BrightnessDown lowers brightness by one step, saturating at zero.
func (c *Channel) BrightnessDown() uint8 {
	c.brightness, _ = mathx.StepDown(c.brightness, BrightnessStep, 0)
	return c.brightness
}

// Release returns every bound pin to the registry.
func (c *Channel) Release(reg hal.Registry, owner string) {
	for i, n := range c.pins {
		if n == hal.Unassigned {
			continue
		}
		reg.ReleasePin(owner, n)
		c.pins[i] = hal.Unassigned
		c.pwm[i] = nil
	}
	c.ready = false
}
