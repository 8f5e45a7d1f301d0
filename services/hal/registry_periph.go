//go:build !rp2040 && !rp2350

package hal

import (
	"fmt"
	"strings"
	"sync"

	"gpaddons-go/errcode"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// Host builds drive a Linux SBC (Raspberry Pi and friends) through periph.io.
var _ Registry = (*periphRegistry)(nil)

// -----------------------------------------------------------------------------
// GPIO handle
// -----------------------------------------------------------------------------

type periphGPIO struct {
	p gpio.PinIO
	n int
}

func (g *periphGPIO) Number() int { return g.n }

func (g *periphGPIO) ConfigureInput(pull Pull) error {
	pp := gpio.Float
	switch pull {
	case PullUp:
		pp = gpio.PullUp
	case PullDown:
		pp = gpio.PullDown
	}
	if err := g.p.In(pp, gpio.NoEdge); err != nil {
		return fmt.Errorf("set pin %d to input: %w", g.n, err)
	}
	return nil
}

func (g *periphGPIO) ConfigureOutput(initial bool) error {
	return g.p.Out(gpio.Level(initial))
}

func (g *periphGPIO) Set(b bool) { _ = g.p.Out(gpio.Level(b)) }
func (g *periphGPIO) Get() bool  { return g.p.Read() == gpio.High }
func (g *periphGPIO) Toggle()    { g.Set(!g.Get()) }

// -----------------------------------------------------------------------------
// PWM handle
// -----------------------------------------------------------------------------

type periphPWM struct {
	mu    sync.Mutex
	p     gpio.PinIO
	freq  physic.Frequency
	top   uint16
	level uint16
}

func (w *periphPWM) Configure(freqHz uint64, top uint16) error {
	if top == 0 {
		top = 1
	}
	if freqHz == 0 {
		freqHz = 1
	}
	w.mu.Lock()
	w.freq = physic.Frequency(freqHz) * physic.Hertz
	w.top = top
	w.mu.Unlock()
	return w.apply(0)
}

func (w *periphPWM) Set(level uint16) { _ = w.apply(level) }

func (w *periphPWM) Level() uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.level
}

func (w *periphPWM) apply(level uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.top == 0 {
		return errcode.NotReady
	}
	if level > w.top {
		level = w.top
	}
	duty := gpio.Duty(uint64(level) * uint64(gpio.DutyMax) / uint64(w.top))
	if err := w.p.PWM(duty, w.freq); err != nil {
		return err
	}
	w.level = level
	return nil
}

// -----------------------------------------------------------------------------
// PinHandle
// -----------------------------------------------------------------------------

type periphPinHandle struct {
	n    int
	fn   PinFunc
	gpio *periphGPIO
	pwm  *periphPWM
}

func (h *periphPinHandle) Pin() int { return h.n }

func (h *periphPinHandle) AsGPIO() GPIOHandle {
	if h.fn != FuncGPIOIn && h.fn != FuncGPIOOut {
		panic("pin not claimed for GPIO")
	}
	return h.gpio
}

func (h *periphPinHandle) AsPWM() PWMHandle {
	if h.fn != FuncPWM {
		panic("pin not claimed for PWM")
	}
	return h.pwm
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

type periphRegistry struct {
	mu     sync.Mutex
	owners map[int]string
	buses  map[string]i2c.BusCloser
	plan   Plan
}

// New initialises periph.io. I²C buses are opened lazily on first claim.
func New(plan Plan) (Registry, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &periphRegistry{
		owners: make(map[int]string),
		buses:  make(map[string]i2c.BusCloser),
		plan:   plan,
	}, nil
}

func (r *periphRegistry) ClaimPin(devID string, n int, fn PinFunc) (PinHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !Assigned(n) {
		return nil, errcode.UnknownPin
	}
	if owner, ok := r.owners[n]; ok && owner != "" {
		return nil, errcode.PinInUse
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if p == nil {
		return nil, errcode.UnknownPin
	}

	ph := &periphPinHandle{n: n, fn: fn}
	switch fn {
	case FuncGPIOIn, FuncGPIOOut:
		ph.gpio = &periphGPIO{p: p, n: n}
	case FuncPWM:
		ph.pwm = &periphPWM{p: p}
	default:
		return nil, errcode.Unsupported
	}
	r.owners[n] = devID
	return ph, nil
}

func (r *periphRegistry) ReleasePin(devID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[n]; ok && owner == devID {
		if p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n)); p != nil {
			_ = p.In(gpio.Float, gpio.NoEdge)
		}
		delete(r.owners, n)
	}
}

// ClaimI2C opens the numbered Linux bus ("i2c1" => /dev/i2c-1).
// periph's i2c.Bus already has the drivers.I2C Tx signature.
func (r *periphRegistry) ClaimI2C(devID string, id string) (drivers.I2C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buses[id]; ok {
		return b, nil
	}
	if !r.planned(id) {
		return nil, errcode.UnknownBus
	}
	b, err := i2creg.Open(strings.TrimPrefix(id, "i2c"))
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownBus, "i2c "+id, err)
	}
	r.buses[id] = b
	return b, nil
}

func (r *periphRegistry) planned(id string) bool {
	for _, p := range r.plan.I2C {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (r *periphRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.buses {
		_ = b.Close()
		delete(r.buses, id)
	}
}
