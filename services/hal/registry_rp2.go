//go:build rp2040 || rp2350

package hal

import (
	"machine"
	"sync"
	"time"

	"gpaddons-go/errcode"
	"gpaddons-go/x/mathx"

	"tinygo.org/x/drivers"
)

// Ensure the provider satisfies the contract at compile time.
var _ Registry = (*rp2Registry)(nil)

// GPIO range of the RP2 user pins (GP0..GP28).
const (
	rp2GPIOMin = 0
	rp2GPIOMax = 28
)

// -----------------------------------------------------------------------------
// GPIO handle
// -----------------------------------------------------------------------------

type rp2GPIO struct {
	p machine.Pin
	n int
}

func (r *rp2GPIO) Number() int { return r.n }

func (r *rp2GPIO) ConfigureInput(pull Pull) error {
	var mode machine.PinMode
	switch pull {
	case PullUp:
		mode = machine.PinInputPullup
	case PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2GPIO) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2GPIO) Set(b bool) { r.p.Set(b) }
func (r *rp2GPIO) Get() bool  { return r.p.Get() }
func (r *rp2GPIO) Toggle() {
	if r.p.Get() {
		r.p.Low()
	} else {
		r.p.High()
	}
}

// -----------------------------------------------------------------------------
// PWM internals
// -----------------------------------------------------------------------------

// Local interface to avoid depending on an unexported concrete type in machine.
type pwmCtrl interface {
	Configure(cfg machine.PWMConfig) error
	Top() uint32
	Set(channel uint8, value uint32)
}

func pwmGroupBySlice(slice uint8) pwmCtrl {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

type sliceCfg struct {
	freqHz uint64
	users  int
}

// rp2PWM is the per-pin PWM handle (channel-level). Both channels of a slice
// share its period, so the first user fixes the frequency.
type rp2PWM struct {
	mu sync.Mutex

	reg   *rp2Registry
	pin   int
	ctrl  pwmCtrl
	chIdx uint8 // 0 => A, 1 => B
	slice int

	reqTop uint16 // logical resolution
	hwTop  uint32 // controller top after Configure
	level  uint16

	registered bool // counted in slice users
}

// caller holds lock
func (p *rp2PWM) setHW(logical uint16) {
	if p.hwTop == 0 || p.reqTop == 0 {
		return
	}
	logical = mathx.Min(logical, p.reqTop)
	hw := (uint32(logical) * p.hwTop) / uint32(p.reqTop)
	p.ctrl.Set(p.chIdx, hw)
	p.level = logical
}

func (p *rp2PWM) Configure(freqHz uint64, top uint16) error {
	top = mathx.Max(top, 1)
	freqHz = mathx.Max(freqHz, 1)

	r := p.reg
	r.pwmMu.Lock()
	defer r.pwmMu.Unlock()

	sc := r.slices[p.slice]
	if sc == nil {
		sc = &sliceCfg{}
		r.slices[p.slice] = sc
	}

	switch {
	case sc.users == 0:
		if err := p.ctrl.Configure(machine.PWMConfig{Period: periodFromHz(freqHz)}); err != nil {
			return err
		}
		sc.freqHz = freqHz
		sc.users = 1
		p.registered = true
	case !p.registered:
		if sc.freqHz != freqHz {
			return errcode.Conflict
		}
		sc.users++
		p.registered = true
	case sc.freqHz != freqHz:
		if sc.users != 1 {
			return errcode.Conflict
		}
		// Sole user may retune the slice.
		if err := p.ctrl.Configure(machine.PWMConfig{Period: periodFromHz(freqHz)}); err != nil {
			return err
		}
		sc.freqHz = freqHz
	}

	machine.Pin(p.pin).Configure(machine.PinConfig{Mode: machine.PinPWM})

	p.mu.Lock()
	p.reqTop = top
	p.hwTop = p.ctrl.Top()
	p.mu.Unlock()
	return nil
}

func (p *rp2PWM) Set(level uint16) {
	p.mu.Lock()
	p.setHW(level)
	p.mu.Unlock()
}

func (p *rp2PWM) Level() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func periodFromHz(hz uint64) uint64 {
	if hz == 0 {
		return 0
	}
	return uint64(time.Second) / hz
}

// -----------------------------------------------------------------------------
// PinHandle
// -----------------------------------------------------------------------------

type rp2PinHandle struct {
	n    int
	fn   PinFunc
	gpio *rp2GPIO
	pwm  *rp2PWM
}

func (h *rp2PinHandle) Pin() int { return h.n }

func (h *rp2PinHandle) AsGPIO() GPIOHandle {
	if h.fn != FuncGPIOIn && h.fn != FuncGPIOOut {
		panic("pin not claimed for GPIO")
	}
	return h.gpio
}

func (h *rp2PinHandle) AsPWM() PWMHandle {
	if h.fn != FuncPWM {
		panic("pin not claimed for PWM")
	}
	return h.pwm
}

// -----------------------------------------------------------------------------
// I²C owner (one worker per bus)
// -----------------------------------------------------------------------------

type i2cReq struct {
	addr uint16
	w, r []byte
	done chan error // buffered(1)
}

type i2cOwner struct {
	hw   *machine.I2C
	reqs chan i2cReq
	quit chan struct{}
}

func newI2COwner(hw *machine.I2C) *i2cOwner {
	o := &i2cOwner{
		hw:   hw,
		reqs: make(chan i2cReq, 16),
		quit: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *i2cOwner) loop() {
	for {
		select {
		case req := <-o.reqs:
			err := o.hw.Tx(req.addr, req.w, req.r)
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

func (o *i2cOwner) stop() { close(o.quit) }

// driversI2C adapts the owner to tinygo.org/x/drivers.I2C with a per-call deadline.
type driversI2C struct {
	o       *i2cOwner
	timeout time.Duration
}

var _ drivers.I2C = (*driversI2C)(nil)

func (d *driversI2C) Tx(addr uint16, w, r []byte) error {
	req := i2cReq{addr: addr, w: w, r: r, done: make(chan error, 1)}

	t := time.NewTimer(d.timeout)
	defer t.Stop()
	select {
	case d.o.reqs <- req:
	case <-t.C:
		return errcode.Busy
	}
	select {
	case err := <-req.done:
		return err
	case <-t.C:
		return errcode.Timeout
	}
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

type pinOwner struct {
	devID string
	fn    PinFunc
}

type rp2Registry struct {
	mu        sync.Mutex
	pinOwners map[int]pinOwner
	gpioMap   map[int]*rp2GPIO
	pwmMap    map[int]*rp2PWM
	i2c       map[string]*i2cOwner

	pwmMu  sync.Mutex
	slices map[int]*sliceCfg
}

// New brings up the buses in plan and returns the RP2 registry.
func New(plan Plan) (Registry, error) {
	r := &rp2Registry{
		pinOwners: make(map[int]pinOwner),
		gpioMap:   make(map[int]*rp2GPIO),
		pwmMap:    make(map[int]*rp2PWM),
		i2c:       make(map[string]*i2cOwner),
		slices:    make(map[int]*sliceCfg),
	}
	for _, p := range plan.I2C {
		var hw *machine.I2C
		switch p.ID {
		case "i2c0":
			hw = machine.I2C0
		case "i2c1":
			hw = machine.I2C1
		default:
			continue
		}
		sda, scl := machine.Pin(p.SDA), machine.Pin(p.SCL)
		if err := hw.Configure(machine.I2CConfig{SDA: sda, SCL: scl, Frequency: p.Hz}); err != nil {
			return nil, errcode.Wrap(errcode.UnknownBus, "i2c "+p.ID, err)
		}
		// Bus pins are owned by the registry itself.
		r.pinOwners[p.SDA] = pinOwner{devID: p.ID}
		r.pinOwners[p.SCL] = pinOwner{devID: p.ID}
		r.i2c[p.ID] = newI2COwner(hw)
	}
	return r, nil
}

func (r *rp2Registry) ClaimI2C(devID string, id string) (drivers.I2C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.i2c[id]
	if o == nil {
		return nil, errcode.UnknownBus
	}
	return &driversI2C{o: o, timeout: 250 * time.Millisecond}, nil
}

func (r *rp2Registry) lookupGPIO(n int) *rp2GPIO {
	if g, ok := r.gpioMap[n]; ok {
		return g
	}
	h := &rp2GPIO{p: machine.Pin(n), n: n}
	r.gpioMap[n] = h
	return h
}

func (r *rp2Registry) ClaimPin(devID string, n int, fn PinFunc) (PinHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n < rp2GPIOMin || n > rp2GPIOMax {
		return nil, errcode.UnknownPin
	}
	if owner, inUse := r.pinOwners[n]; inUse && owner.devID != "" {
		return nil, errcode.PinInUse
	}

	ph := &rp2PinHandle{n: n, fn: fn}
	switch fn {
	case FuncGPIOIn, FuncGPIOOut:
		ph.gpio = r.lookupGPIO(n)
	case FuncPWM:
		sliceNum, err := machine.PWMPeripheral(machine.Pin(n))
		if err != nil {
			return nil, errcode.Unsupported
		}
		ph.pwm = &rp2PWM{
			reg:   r,
			pin:   n,
			ctrl:  pwmGroupBySlice(sliceNum),
			chIdx: uint8(n & 1), // even pin => A, odd => B
			slice: int(sliceNum),
		}
		r.pwmMap[n] = ph.pwm
	default:
		return nil, errcode.Unsupported
	}

	r.pinOwners[n] = pinOwner{devID: devID, fn: fn}
	return ph, nil
}

func (r *rp2Registry) ReleasePin(devID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.pinOwners[n]
	if !ok || owner.devID != devID {
		return
	}
	if owner.fn == FuncPWM {
		if p := r.pwmMap[n]; p != nil {
			p.mu.Lock()
			if p.hwTop != 0 && p.reqTop != 0 {
				p.setHW(0)
			} else {
				p.ctrl.Set(p.chIdx, 0)
			}
			p.mu.Unlock()

			r.pwmMu.Lock()
			if sc := r.slices[p.slice]; sc != nil && p.registered && sc.users > 0 {
				sc.users--
				if sc.users == 0 {
					sc.freqHz = 0
				}
				p.registered = false
			}
			r.pwmMu.Unlock()
		}
		delete(r.pwmMap, n)
	}
	machine.Pin(n).Configure(machine.PinConfig{Mode: machine.PinInput})
	delete(r.pinOwners, n)
}

// Close stops the per-bus I²C workers.
func (r *rp2Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.i2c {
		o.stop()
	}
}
