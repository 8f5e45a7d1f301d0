// Package leds drives groups of PWM LEDs through simple animation programs.
//
// A Channel is one physical group (up to MaxLEDs pins). An Engine holds one
// Animation per channel and advances them on each tick. Output levels are
// brightness squared, which approximates a perceptual curve on the 16-bit
// PWM range.
package leds

import "gpaddons-go/types"

// Type is the animation program.
type Type uint8

const (
	Off   Type = 0
	Solid Type = 1
	Blink Type = 2
	Fade  Type = 3
	// None never matches a real program; it marks an animation as not yet
	// applied.
	None Type = 255
)

func (t Type) String() string {
	switch t {
	case Off:
		return "off"
	case Solid:
		return "solid"
	case Blink:
		return "blink"
	case Fade:
		return "fade"
	case None:
		return "none"
	}
	return "unknown"
}

// Speed is the animation period in milliseconds.
type Speed uint16

const (
	SpeedOff       Speed = 0
	SpeedLudicrous Speed = 20
	SpeedFaster    Speed = 100
	SpeedFast      Speed = 250
	SpeedNormal    Speed = 500
	SpeedSlow      Speed = 1000
)

const (
	StateAllOff uint8 = 0
	StateAllOn  uint8 = 0xFF
)

// BrightnessStep is the fade and manual adjustment increment.
const BrightnessStep = 5

// MaxLEDs is the largest group a channel drives.
const MaxLEDs = 4

// Animation is the per-channel program state.
// Mask selects the LED bits the program may light; bits outside it are kept
// dark by every program except Off, which ORs the mask in.
type Animation struct {
	State        uint8
	Mask         uint8
	Type         Type
	PreviousType Type
	Speed        Speed
}

// Presets.
var (
	AllOff       = Animation{State: StateAllOff, Mask: 0, Type: Off, PreviousType: None}
	AllOn        = Animation{State: StateAllOn, Mask: 0xFF, Type: Solid, PreviousType: None}
	BlinkFastAll = Animation{State: StateAllOff, Mask: 0xFF, Type: Blink, PreviousType: None, Speed: SpeedFast}
	FadeAll      = Animation{State: StateAllOn, Mask: 0xFF, Type: Fade, PreviousType: None, Speed: SpeedLudicrous}
)

// Value is the bus representation.
func (a Animation) Value() types.AnimationValue {
	return types.AnimationValue{Type: a.Type.String(), Speed: uint16(a.Speed), Mask: a.Mask}
}
