package config

import (
	"strconv"
	"strings"

	"gpaddons-go/errcode"
	"gpaddons-go/services/hal"
	"gpaddons-go/types"

	"gopkg.in/yaml.v3"
)

// PinMax is the highest user GPIO on RP2 boards.
const PinMax = 28

// -----------------------------------------------------------------------------
// Button masks
// -----------------------------------------------------------------------------

// Mask is a gamepad button bitmask. In YAML it may be written as a number,
// a name ("coin"), a "|"-joined list ("s1|a1") or a sequence of names.
type Mask uint32

func (m *Mask) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		v, err := parseMask(n.Value)
		if err != nil {
			return err
		}
		*m = v
		return nil
	case yaml.SequenceNode:
		var out Mask
		for _, c := range n.Content {
			v, err := parseMask(c.Value)
			if err != nil {
				return err
			}
			out |= v
		}
		*m = out
		return nil
	}
	return errcode.Invalid("mask", "expected scalar or sequence")
}

func (m Mask) MarshalYAML() (any, error) { return uint32(m), nil }

func parseMask(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return Mask(v), nil
	}
	var out Mask
	for _, part := range strings.Split(s, "|") {
		name := strings.ToLower(strings.TrimSpace(part))
		b, ok := types.ButtonByName(name)
		if !ok {
			return 0, errcode.Invalid("mask", "unknown button "+strconv.Quote(name))
		}
		out |= Mask(b)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Per add-on options
// -----------------------------------------------------------------------------

// ButtonPin maps one board input to a gamepad button or dpad direction.
type ButtonPin struct {
	Pin    int    `yaml:"pin"`
	Button string `yaml:"button"` // "s1", "coin", "up", ...
}

type GamepadOptions struct {
	Pins []ButtonPin `yaml:"pins"`
}

type CoinLedsOptions struct {
	Enabled bool `yaml:"enabled"`

	StartPins  []int `yaml:"start_pins"` // up to 4
	CoinPins   []int `yaml:"coin_pins"`  // up to 4
	MarqueePin int   `yaml:"marquee_pin"`

	ExtStartPin int `yaml:"ext_start_pin"`
	ExtCoinPin  int `yaml:"ext_coin_pin"`
	// Relay lines idle high and drive low while held unless set.
	ExtActiveHigh bool `yaml:"ext_active_high"`

	StartMask    Mask `yaml:"start_mask"`
	CoinMask     Mask `yaml:"coin_mask"`
	ExtStartMask Mask `yaml:"ext_start_mask"`
	ExtCoinMask  Mask `yaml:"ext_coin_mask"`

	// Percent, 0..100.
	StartBrightness   uint8 `yaml:"start_brightness"`
	CoinBrightness    uint8 `yaml:"coin_brightness"`
	MarqueeBrightness uint8 `yaml:"marquee_brightness"`

	DebounceMs int64 `yaml:"debounce_ms"`
}

type PCControlOptions struct {
	Enabled   bool `yaml:"enabled"`
	PowerPin  int  `yaml:"power_pin"`
	SwitchPin int  `yaml:"switch_pin"`
	// Both masks held together press the power button.
	ButtonMask1 Mask   `yaml:"button_mask_1"`
	ButtonMask2 Mask   `yaml:"button_mask_2"`
	PulseMs     uint32 `yaml:"pulse_ms"`
}

type Z680Options struct {
	Enabled       bool `yaml:"enabled"`
	PowerPin      int  `yaml:"power_pin"`
	PowerStatePin int  `yaml:"power_state_pin"`
	VolumeUpPin   int  `yaml:"volume_up_pin"`
	VolumeDownPin int  `yaml:"volume_down_pin"`
	MutePin       int  `yaml:"mute_pin"`
	// Held modifier; the dpad then selects the remote key.
	ButtonMask Mask   `yaml:"button_mask"`
	PulseMs    uint32 `yaml:"pulse_ms"`
	RepeatMs   uint32 `yaml:"repeat_ms"`
}

// I2CMap binds a button mask to a command word: address in the top byte,
// three data bytes below it.
type I2CMap struct {
	Command     uint32 `yaml:"command"`
	ButtonsMask uint32 `yaml:"buttons_mask"`
}

// I2CMapCount is the number of map slots a board can carry.
const I2CMapCount = 12

type I2CMapperOptions struct {
	Enabled bool     `yaml:"enabled"`
	Bus     string   `yaml:"bus"` // "i2c0", "i2c1"
	Maps    []I2CMap `yaml:"maps"`
}

// LinkOptions configures the serial event link to a host.
type LinkOptions struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"` // "uart" unless another is registered
	Baud      uint32 `yaml:"baud"`
	TXPin     int    `yaml:"tx_pin"`
	RXPin     int    `yaml:"rx_pin"`
	// Topic filters forwarded to the host, "/"-separated with + and #.
	Forward []string `yaml:"forward"`
	PingMs  uint32   `yaml:"ping_ms"`
}

// AddonOptions is the complete persisted option set.
type AddonOptions struct {
	Board     string           `yaml:"board"`
	I2C       []hal.I2CPlan    `yaml:"i2c,omitempty"`
	Gamepad   GamepadOptions   `yaml:"gamepad"`
	CoinLeds  CoinLedsOptions  `yaml:"coin_leds"`
	PCControl PCControlOptions `yaml:"pc_control"`
	Z680      Z680Options      `yaml:"z680"`
	I2CMapper I2CMapperOptions `yaml:"i2c_mapper"`
	Link      LinkOptions      `yaml:"link"`
}

// Clone returns a deep copy so stores never share slices with callers.
func (o AddonOptions) Clone() AddonOptions {
	c := o
	c.I2C = append([]hal.I2CPlan(nil), o.I2C...)
	c.Gamepad.Pins = append([]ButtonPin(nil), o.Gamepad.Pins...)
	c.CoinLeds.StartPins = append([]int(nil), o.CoinLeds.StartPins...)
	c.CoinLeds.CoinPins = append([]int(nil), o.CoinLeds.CoinPins...)
	c.I2CMapper.Maps = append([]I2CMap(nil), o.I2CMapper.Maps...)
	c.Link.Forward = append([]string(nil), o.Link.Forward...)
	return c
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

type pinUse struct {
	pins map[int]string
}

func (u *pinUse) add(owner string, n int) error {
	if n == hal.Unassigned {
		return nil
	}
	if n < hal.Unassigned || n > PinMax {
		return errcode.Invalid(owner, "pin "+strconv.Itoa(n)+" out of range")
	}
	if prev, ok := u.pins[n]; ok {
		return &errcode.E{C: errcode.Conflict, Op: owner, Msg: "pin " + strconv.Itoa(n) + " already used by " + prev}
	}
	u.pins[n] = owner
	return nil
}

// Validate checks ranges and that no pin is assigned twice.
// Disabled add-ons are still range checked but do not reserve pins.
func (o *AddonOptions) Validate() error {
	u := &pinUse{pins: make(map[int]string)}

	for _, p := range o.I2C {
		if err := u.add("i2c."+p.ID, p.SDA); err != nil {
			return err
		}
		if err := u.add("i2c."+p.ID, p.SCL); err != nil {
			return err
		}
	}
	for _, bp := range o.Gamepad.Pins {
		_, isButton := types.ButtonByName(bp.Button)
		_, isDpad := types.DpadByName(bp.Button)
		if !isButton && !isDpad {
			return errcode.Invalid("gamepad", "unknown button "+strconv.Quote(bp.Button))
		}
		if err := u.add("gamepad."+bp.Button, bp.Pin); err != nil {
			return err
		}
	}

	cl := &o.CoinLeds
	if len(cl.StartPins) > 4 || len(cl.CoinPins) > 4 {
		return errcode.Invalid("coin_leds", "at most 4 pins per channel")
	}
	for _, b := range []uint8{cl.StartBrightness, cl.CoinBrightness, cl.MarqueeBrightness} {
		if b > 100 {
			return errcode.Invalid("coin_leds", "brightness "+strconv.Itoa(int(b))+" above 100")
		}
	}
	if cl.DebounceMs < 0 {
		return errcode.Invalid("coin_leds", "negative debounce")
	}
	clPins := append(append(append([]int(nil), cl.StartPins...), cl.CoinPins...), cl.MarqueePin, cl.ExtStartPin, cl.ExtCoinPin)
	if err := u.section("coin_leds", cl.Enabled, clPins); err != nil {
		return err
	}

	pc := &o.PCControl
	if err := u.section("pc_control", pc.Enabled, []int{pc.PowerPin, pc.SwitchPin}); err != nil {
		return err
	}

	z := &o.Z680
	if err := u.section("z680", z.Enabled, []int{z.PowerPin, z.PowerStatePin, z.VolumeUpPin, z.VolumeDownPin, z.MutePin}); err != nil {
		return err
	}

	if len(o.I2CMapper.Maps) > I2CMapCount {
		return errcode.Invalid("i2c_mapper", "more than "+strconv.Itoa(I2CMapCount)+" maps")
	}

	l := &o.Link
	if err := u.section("link", l.Enabled, []int{l.TXPin, l.RXPin}); err != nil {
		return err
	}
	if l.Enabled && len(l.Forward) == 0 {
		return errcode.Invalid("link", "nothing to forward")
	}
	return nil
}

func (u *pinUse) section(owner string, enabled bool, pins []int) error {
	for _, n := range pins {
		if n < hal.Unassigned || n > PinMax {
			return errcode.Invalid(owner, "pin "+strconv.Itoa(n)+" out of range")
		}
		if !enabled {
			continue
		}
		if err := u.add(owner, n); err != nil {
			return err
		}
	}
	return nil
}
