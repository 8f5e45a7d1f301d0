// Package pulse presses an output pin for a fixed time without blocking the
// add-on loop: Start arms a deadline and Update releases the pin once it has
// passed.
package pulse

import (
	"gpaddons-go/services/hal"
	"gpaddons-go/x/timex"
)

type Pulser struct {
	pin        hal.GPIOHandle
	n          int
	durMs      int64
	activeHigh bool

	busy  bool
	until int64
	count int
}

// Claim takes pin as an output driven idle.
func Claim(reg hal.Registry, owner string, pin int, durationMs uint32, activeHigh bool) (*Pulser, error) {
	ph, err := reg.ClaimPin(owner, pin, hal.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	p := &Pulser{pin: ph.AsGPIO(), n: pin, durMs: int64(durationMs), activeHigh: activeHigh}
	if err := p.pin.ConfigureOutput(!activeHigh); err != nil {
		reg.ReleasePin(owner, pin)
		return nil, err
	}
	return p, nil
}

func (p *Pulser) Pin() int           { return p.n }
func (p *Pulser) DurationMs() uint32 { return uint32(p.durMs) }
func (p *Pulser) Busy() bool         { return p.busy }

// Count is the number of pulses started.
func (p *Pulser) Count() int { return p.count }

// Start begins a pulse unless one is already running.
func (p *Pulser) Start(now int64) bool {
	if p.busy {
		return false
	}
	p.pin.Set(p.activeHigh)
	p.busy = true
	p.until = now + p.durMs
	p.count++
	return true
}

// Update ends the running pulse once its deadline is reached.
func (p *Pulser) Update(now int64) {
	if p.busy && timex.Reached(now, p.until) {
		p.pin.Set(!p.activeHigh)
		p.busy = false
	}
}
