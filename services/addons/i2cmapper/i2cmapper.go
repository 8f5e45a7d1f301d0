// Package i2cmapper writes a three-byte command to an I²C device when a
// button mask is pressed.
//
// Each map's command word carries the 7-bit device address in its top byte
// and the payload in the low 24 bits, sent most significant byte first.
package i2cmapper

import (
	"context"
	"log/slog"
	"time"

	"gpaddons-go/errcode"
	"gpaddons-go/services/addons"
	"gpaddons-go/services/config"
	"gpaddons-go/types"

	"github.com/sony/gobreaker/v2"
	"tinygo.org/x/drivers"
)

const Name = "i2c_mapper"

// NoData marks a device that has not been written yet.
const NoData uint32 = 0xFFFFFFFF

// A device that fails this many writes in a row is skipped until
// breakerTimeout has passed, so an unplugged board does not stall the loop
// on bus timeouts.
const maxFailures = 3

var breakerTimeout = 2 * time.Second

type device struct {
	addr     uint8
	dataSent uint32
	breaker  *gobreaker.CircuitBreaker[struct{}]
}

func (a *Addon) newDevice(addr uint8) *device {
	log := a.log
	return &device{
		addr:     addr,
		dataSent: NoData,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "i2c:" + hex(addr),
			MaxRequests: 1,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("i2c device state", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func hex(b uint8) string {
	const digits = "0123456789abcdef"
	return "0x" + string([]byte{digits[b>>4], digits[b&0xF]})
}

type action struct {
	dev  *device
	mask uint32
	data uint32
	held bool
}

type Addon struct {
	env  *addons.Env
	opts config.I2CMapperOptions
	log  *slog.Logger
	pub  addons.Publisher

	bus     drivers.I2C
	devices []*device
	actions []*action
	probed  bool
}

var _ addons.Addon = (*Addon)(nil)

func New(env *addons.Env) *Addon {
	return &Addon{
		env:  env,
		opts: env.Options.I2CMapper,
		log:  env.Logger(Name),
		pub:  addons.NewPublisher(env.Conn, Name),
	}
}

func (a *Addon) Name() string { return Name }

// Address returns the device address carried by a command word.
func Address(command uint32) uint8 { return uint8(command >> 24) }

// DecodeMask normalises a stored buttons mask. A 16-bit half above 0x8000
// holds an inverted mask for the upper button bank and is moved there.
func DecodeMask(m uint32) uint32 {
	hi, lo := uint16(m>>16), uint16(m)
	var out uint32
	if hi > 0x8000 {
		out = uint32(^hi) << 16
	} else {
		out = uint32(hi)
	}
	if lo > 0x8000 {
		out |= uint32(^lo) << 16
	} else {
		out |= uint32(lo)
	}
	return out
}

// Encode splits the low 24 bits of data into the bytes written on the bus.
func Encode(data uint32) [3]byte {
	return [3]byte{byte(data >> 16), byte(data >> 8), byte(data)}
}

// Available probes every distinct map address with a one-byte read and
// reports whether any device answered.
func (a *Addon) Available() bool {
	if !a.opts.Enabled {
		return false
	}
	if a.probed {
		return len(a.devices) > 0
	}
	a.probed = true

	b, err := a.env.HAL.ClaimI2C(Name, a.opts.Bus)
	if err != nil {
		a.log.Warn("i2c bus unavailable", "bus", a.opts.Bus, "err", err)
		return false
	}
	a.bus = b

	seen := map[uint8]bool{}
	var probe [1]byte
	for _, m := range a.opts.Maps {
		if m.Command == 0 {
			continue
		}
		addr := Address(m.Command)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		if err := b.Tx(uint16(addr), nil, probe[:]); err != nil {
			a.log.Debug("no device", "addr", addr, "err", err)
			continue
		}
		a.devices = append(a.devices, a.newDevice(addr))
	}
	return len(a.devices) > 0
}

func (a *Addon) lookup(addr uint8) *device {
	for _, d := range a.devices {
		if d.addr == addr {
			return d
		}
	}
	return nil
}

// DataSent returns the last payload written to addr.
func (a *Addon) DataSent(addr uint8) (uint32, bool) {
	d := a.lookup(addr)
	if d == nil {
		return 0, false
	}
	return d.dataSent, true
}

// Setup binds each map whose device answered the probe.
func (a *Addon) Setup(ctx context.Context) error {
	if a.bus == nil {
		return errcode.Wrap(errcode.NotReady, "i2c_mapper setup", nil)
	}
	for _, m := range a.opts.Maps {
		d := a.lookup(Address(m.Command))
		if d == nil || m.Command == 0 {
			continue
		}
		a.actions = append(a.actions, &action{
			dev:  d,
			mask: DecodeMask(m.ButtonsMask),
			data: m.Command & 0x00FFFFFF,
		})
	}
	a.log.Info("i2c mapper ready", "devices", len(a.devices), "maps", len(a.actions))
	return nil
}

func (a *Addon) Preprocess() {}

// Process sends each map's command on the rising edge of its mask.
func (a *Addon) Process() {
	buttons := a.env.Gamepad.State().Buttons
	for _, act := range a.actions {
		down := buttons&act.mask != 0
		if down && !act.held {
			a.send(act.dev, act.data)
		}
		act.held = down
	}
}

func (a *Addon) send(d *device, data uint32) {
	buf := Encode(data)
	v := types.I2CCommandValue{Address: d.addr, Data: data}
	_, err := d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, a.bus.Tx(uint16(d.addr), buf[:], nil)
	})
	switch {
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		a.log.Debug("i2c device skipped", "addr", d.addr)
		v.Error = string(errcode.NotReady)
	case err != nil:
		a.log.Warn("i2c write failed", "addr", d.addr, "err", err)
		v.Error = string(errcode.Of(err))
	default:
		d.dataSent = data
	}
	a.pub.Publish(v, false, "i2c", int(d.addr))
}
