// Package fake provides an in-memory hal.Registry for host tests and the
// simulator. It records every level written so assertions can read them back.
package fake

import (
	"sync"

	"gpaddons-go/errcode"
	"gpaddons-go/services/hal"

	"tinygo.org/x/drivers"
)

var _ hal.Registry = (*Registry)(nil)

// ----------------------------- GPIO ------------------------------------------

// Pin implements hal.GPIOHandle.
type Pin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	modeOut bool
	pull    hal.Pull
	writes  int
}

func (p *Pin) Number() int { return p.number }

func (p *Pin) ConfigureInput(pull hal.Pull) error {
	p.mu.Lock()
	p.modeOut = false
	p.pull = pull
	// An idle pulled-up input reads high.
	p.level = pull == hal.PullUp
	p.mu.Unlock()
	return nil
}

func (p *Pin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *Pin) Set(b bool) {
	p.mu.Lock()
	p.level = b
	p.writes++
	p.mu.Unlock()
}

func (p *Pin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

func (p *Pin) Toggle() { p.Set(!p.Get()) }

// Drive sets the level seen by an input, as external hardware would.
func (p *Pin) Drive(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

// Output reports whether the pin was configured as an output.
func (p *Pin) Output() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modeOut
}

// Writes counts Set calls.
func (p *Pin) Writes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writes
}

// ----------------------------- PWM -------------------------------------------

// PWM implements hal.PWMHandle.
type PWM struct {
	mu     sync.Mutex
	pin    int
	freqHz uint64
	top    uint16
	level  uint16
	writes int
}

func (w *PWM) Configure(freqHz uint64, top uint16) error {
	w.mu.Lock()
	w.freqHz, w.top = freqHz, top
	w.mu.Unlock()
	return nil
}

func (w *PWM) Set(level uint16) {
	w.mu.Lock()
	if level > w.top {
		level = w.top
	}
	w.level = level
	w.writes++
	w.mu.Unlock()
}

func (w *PWM) Level() uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.level
}

// Writes counts Set calls.
func (w *PWM) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

// Top returns the configured logical resolution.
func (w *PWM) Top() uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.top
}

// ----------------------------- I²C ------------------------------------------

// Tx is one recorded I²C transaction.
type Tx struct {
	Addr uint16
	W    []byte
	Rn   int
}

// I2C implements drivers.I2C. Addresses not in Present fail with NotFound.
type I2C struct {
	mu      sync.Mutex
	Present map[uint16]bool
	Log     []Tx
}

var _ drivers.I2C = (*I2C)(nil)

func (b *I2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Log = append(b.Log, Tx{Addr: addr, W: append([]byte(nil), w...), Rn: len(r)})
	if !b.Present[addr] {
		return errcode.NotFound
	}
	for i := range r {
		r[i] = 0
	}
	return nil
}

// Writes returns recorded transactions that carried data.
func (b *I2C) Writes() []Tx {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Tx
	for _, t := range b.Log {
		if len(t.W) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// ----------------------------- Registry --------------------------------------

type handle struct {
	n    int
	fn   hal.PinFunc
	gpio *Pin
	pwm  *PWM
}

func (h *handle) Pin() int { return h.n }

func (h *handle) AsGPIO() hal.GPIOHandle {
	if h.fn != hal.FuncGPIOIn && h.fn != hal.FuncGPIOOut {
		panic("pin not claimed for GPIO")
	}
	return h.gpio
}

func (h *handle) AsPWM() hal.PWMHandle {
	if h.fn != hal.FuncPWM {
		panic("pin not claimed for PWM")
	}
	return h.pwm
}

// Registry is an in-memory pin and bus owner. Pins 0..MaxPin exist.
type Registry struct {
	mu     sync.Mutex
	MaxPin int
	owners map[int]string
	pins   map[int]*Pin
	pwms   map[int]*PWM
	buses  map[string]*I2C
}

// NewRegistry returns a registry with RP2-sized GPIO range (GP0..GP28).
func NewRegistry() *Registry {
	return &Registry{
		MaxPin: 28,
		owners: make(map[int]string),
		pins:   make(map[int]*Pin),
		pwms:   make(map[int]*PWM),
		buses:  make(map[string]*I2C),
	}
}

func (r *Registry) ClaimPin(devID string, n int, fn hal.PinFunc) (hal.PinHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 0 || n > r.MaxPin {
		return nil, errcode.UnknownPin
	}
	if owner, ok := r.owners[n]; ok && owner != "" {
		return nil, errcode.PinInUse
	}
	h := &handle{n: n, fn: fn}
	switch fn {
	case hal.FuncGPIOIn, hal.FuncGPIOOut:
		p := r.pins[n]
		if p == nil {
			p = &Pin{number: n}
			r.pins[n] = p
		}
		h.gpio = p
	case hal.FuncPWM:
		w := &PWM{pin: n}
		r.pwms[n] = w
		h.pwm = w
	default:
		return nil, errcode.Unsupported
	}
	r.owners[n] = devID
	return h, nil
}

func (r *Registry) ReleasePin(devID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[n]; ok && owner == devID {
		delete(r.owners, n)
		if w := r.pwms[n]; w != nil {
			w.Set(0)
		}
	}
}

func (r *Registry) ClaimI2C(devID string, id string) (drivers.I2C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buses[id]
	if !ok {
		return nil, errcode.UnknownBus
	}
	return b, nil
}

func (r *Registry) Close() {}

// AddI2C creates bus id with devices answering at addrs.
func (r *Registry) AddI2C(id string, addrs ...uint16) *I2C {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &I2C{Present: make(map[uint16]bool)}
	for _, a := range addrs {
		b.Present[a] = true
	}
	r.buses[id] = b
	return b
}

// Pin returns the GPIO view of pin n, creating it if needed so tests can
// drive inputs before the owner claims them.
func (r *Registry) Pin(n int) *Pin {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pins[n]
	if p == nil {
		p = &Pin{number: n}
		r.pins[n] = p
	}
	return p
}

// PWM returns the PWM handle claimed on pin n, or nil.
func (r *Registry) PWM(n int) *PWM {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pwms[n]
}

// Level returns the last PWM level written on pin n (0 if never claimed).
func (r *Registry) Level(n int) uint16 {
	if w := r.PWM(n); w != nil {
		return w.Level()
	}
	return 0
}

// Owner reports which device holds pin n.
func (r *Registry) Owner(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[n]
	return o, ok
}
