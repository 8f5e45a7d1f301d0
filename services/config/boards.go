package config

import (
	"gpaddons-go/services/hal"
	"gpaddons-go/types"
)

// -----------------------------------------------------------------------------
// Board presets
//
// Key: board name (the value passed to the binaries and stored in Board)
// Val: constructor for that board's default options
// -----------------------------------------------------------------------------

var boards = map[string]func() AddonOptions{
	"MK2cabA": mk2cabA,
	"pico":    pico,
}

// BoardLookup allows overriding how presets are resolved.
var BoardLookup = func(name string) (AddonOptions, bool) {
	f, ok := boards[name]
	if !ok {
		return AddonOptions{}, false
	}
	return f(), true
}

// Boards lists the built-in preset names.
func Boards() []string {
	out := make([]string, 0, len(boards))
	for k := range boards {
		out = append(out, k)
	}
	return out
}

// Disabled returns options with every pin unassigned and every add-on off.
func Disabled() AddonOptions {
	u := hal.Unassigned
	return AddonOptions{
		CoinLeds: CoinLedsOptions{
			StartPins:         []int{u, u, u, u},
			CoinPins:          []int{u, u, u, u},
			MarqueePin:        u,
			ExtStartPin:       u,
			ExtCoinPin:        u,
			StartMask:         Mask(types.MaskS2),
			CoinMask:          Mask(types.MaskS1),
			StartBrightness:   100,
			CoinBrightness:    100,
			MarqueeBrightness: 100,
			DebounceMs:        50,
		},
		PCControl: PCControlOptions{PowerPin: u, SwitchPin: u, PulseMs: 100},
		Z680: Z680Options{
			PowerPin: u, PowerStatePin: u, VolumeUpPin: u, VolumeDownPin: u, MutePin: u,
			PulseMs: 50, RepeatMs: 150,
		},
		I2CMapper: I2CMapperOptions{Bus: "i2c0"},
		Link: LinkOptions{
			Transport: "uart", Baud: 115200, TXPin: u, RXPin: u,
			Forward: []string{"addons/#", "status/#"}, PingMs: 5000,
		},
	}
}

// pico is a bare Raspberry Pi Pico with nothing wired.
func pico() AddonOptions {
	o := Disabled()
	o.Board = "pico"
	return o
}

// mk2cabA is the two-player arcade cabinet controller.
func mk2cabA() AddonOptions {
	o := Disabled()
	o.Board = "MK2cabA"
	o.Gamepad.Pins = []ButtonPin{
		{0, "left"}, {1, "right"}, {2, "down"}, {3, "up"},
		{6, "l3"}, {7, "r1"}, {8, "b1"}, {9, "b2"},
		{10, "l1"}, {11, "r3"}, {12, "b3"}, {13, "b4"},
		{16, "s2"}, {19, "a2"}, {20, "s1"}, {26, "a1"}, {27, "a4"},
	}
	cl := &o.CoinLeds
	cl.Enabled = true
	cl.StartPins = []int{17, 18, hal.Unassigned, hal.Unassigned}
	cl.CoinPins = []int{21, 22, hal.Unassigned, hal.Unassigned}
	cl.MarqueePin = 28
	cl.ExtStartPin = 14
	cl.ExtCoinPin = 15
	cl.StartMask = Mask(types.MaskS2 | types.MaskA2)
	cl.CoinMask = Mask(types.MaskS1 | types.MaskA1)
	cl.ExtStartMask = Mask(types.MaskA2)
	cl.ExtCoinMask = Mask(types.MaskA1)

	// Host link on UART1.
	o.Link.Enabled = true
	o.Link.TXPin = 4
	o.Link.RXPin = 5
	return o
}
