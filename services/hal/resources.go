// Package hal owns the board's pins and buses. Every pin belongs to at most one
// device for the lifetime of the process; add-ons claim what they drive at
// setup time and never arbitrate at runtime.
package hal

import (
	"tinygo.org/x/drivers"
)

// Unassigned marks a pin option that is not wired on this board.
const Unassigned = -1

// Assigned reports whether n names a real pin. 0xFF is the legacy
// "unassigned" byte used by stored options.
func Assigned(n int) bool { return n >= 0 && n < 0xFF }

// LED PWM defaults: ~500 Hz, full 16-bit logical resolution.
const (
	LEDFreqHz        = 500
	LEDTop    uint16 = 0xFFFF
)

// ---- Pin functions ----

type PinFunc uint8

const (
	FuncGPIOIn PinFunc = iota
	FuncGPIOOut
	FuncPWM
)

func (f PinFunc) String() string {
	switch f {
	case FuncGPIOIn:
		return "gpio_in"
	case FuncGPIOOut:
		return "gpio_out"
	case FuncPWM:
		return "pwm"
	}
	return "unknown"
}

// ---- GPIO handles ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

type GPIOHandle interface {
	Number() int
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(bool)
	Get() bool
	Toggle()
}

// ---- PWM handles ----

// PWMHandle drives one PWM channel with a logical level in [0..top].
// Providers scale to the hardware counter.
type PWMHandle interface {
	Configure(freqHz uint64, top uint16) error
	Set(level uint16)
	Level() uint16
}

// PinHandle is returned by ClaimPin; only the view matching the claimed
// function is valid.
type PinHandle interface {
	Pin() int
	AsGPIO() GPIOHandle
	AsPWM() PWMHandle
}

// ---- Bus plan ----

// I2CPlan describes one I²C bus the provider should bring up.
type I2CPlan struct {
	ID  string `yaml:"id"` // "i2c0", "i2c1"
	SDA int    `yaml:"sda"`
	SCL int    `yaml:"scl"`
	Hz  uint32 `yaml:"hz"`
}

// Plan lists buses to initialise at registry creation.
type Plan struct {
	I2C []I2CPlan `yaml:"i2c"`
}

// ---- Registry ----

// Registry hands out exclusive pin claims and shared bus handles.
type Registry interface {
	ClaimPin(devID string, n int, fn PinFunc) (PinHandle, error)
	ReleasePin(devID string, n int)
	ClaimI2C(devID string, id string) (drivers.I2C, error)
	Close()
}
