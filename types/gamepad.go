package types

// ------------------------
// Gamepad
// ------------------------

// Button masks, GP2040 ordering.
const (
	MaskB1 uint32 = 1 << iota
	MaskB2
	MaskB3
	MaskB4
	MaskL1
	MaskR1
	MaskL2
	MaskR2
	MaskS1 // coin / select
	MaskS2 // start
	MaskL3
	MaskR3
	MaskA1
	MaskA2
	MaskA3
	MaskA4
)

// Dpad masks.
const (
	DpadUp uint8 = 1 << iota
	DpadDown
	DpadLeft
	DpadRight

	DpadAll = DpadUp | DpadDown | DpadLeft | DpadRight
)

// GamepadState is the processed input for one loop iteration.
type GamepadState struct {
	Buttons uint32 `json:"buttons"`
	Dpad    uint8  `json:"dpad"`
}

var buttonNames = map[string]uint32{
	"b1": MaskB1, "b2": MaskB2, "b3": MaskB3, "b4": MaskB4,
	"l1": MaskL1, "r1": MaskR1, "l2": MaskL2, "r2": MaskR2,
	"s1": MaskS1, "s2": MaskS2, "l3": MaskL3, "r3": MaskR3,
	"a1": MaskA1, "a2": MaskA2, "a3": MaskA3, "a4": MaskA4,
	"coin": MaskS1, "start": MaskS2,
}

var dpadNames = map[string]uint8{
	"up": DpadUp, "down": DpadDown, "left": DpadLeft, "right": DpadRight,
}

// ButtonByName resolves a button name ("s1", "coin", "a2", ...) to its mask.
func ButtonByName(name string) (uint32, bool) {
	m, ok := buttonNames[name]
	return m, ok
}

// DpadByName resolves "up", "down", "left" or "right".
func DpadByName(name string) (uint8, bool) {
	m, ok := dpadNames[name]
	return m, ok
}
