package leds

// ID indexes a channel within an Engine.
type ID int

type slot struct {
	ch       *Channel
	anim     Animation
	off      bool
	prevMask uint8
}

// Engine holds one Animation per channel.
type Engine struct {
	slots []slot
}

// Add registers ch with its initial program.
func (e *Engine) Add(ch *Channel, initial Animation) ID {
	e.slots = append(e.slots, slot{ch: ch, anim: initial})
	return ID(len(e.slots) - 1)
}

func (e *Engine) Channel(id ID) *Channel     { return e.slots[id].ch }
func (e *Engine) Animation(id ID) Animation { return e.slots[id].anim }
func (e *Engine) Len() int                  { return len(e.slots) }

// SetAnimation declares the desired program for a channel. Setting the same
// type again only updates speed and mask, so a running blink or fade keeps
// its phase. A different type is armed to reset on the next tick.
// It reports whether the program changed.
func (e *Engine) SetAnimation(id ID, a Animation) bool {
	s := &e.slots[id]
	if a.Type == s.anim.Type {
		s.anim.Speed = a.Speed
		if s.off {
			s.prevMask = a.Mask
		} else {
			s.anim.Mask = a.Mask
		}
		return false
	}
	next := a
	next.PreviousType = None
	if next.Type == None {
		next.PreviousType = Off
	}
	if s.off {
		s.prevMask = next.Mask
		next.Mask = 0
	}
	s.anim = next
	return true
}

// TurnOff blanks the channel by clearing its mask.
func (e *Engine) TurnOff(id ID) {
	s := &e.slots[id]
	if s.off {
		return
	}
	s.prevMask = s.anim.Mask
	s.anim.Mask = 0
	s.off = true
	s.ch.Repaint(&s.anim)
}

// TurnOn restores the mask saved by TurnOff.
func (e *Engine) TurnOn(id ID) {
	s := &e.slots[id]
	if !s.off {
		return
	}
	s.anim.Mask = s.prevMask
	s.off = false
	s.ch.Repaint(&s.anim)
}

// Toggle flips the channel between off and on and reports whether it is on.
func (e *Engine) Toggle(id ID) bool {
	if e.slots[id].off {
		e.TurnOn(id)
		return true
	}
	e.TurnOff(id)
	return false
}

func (e *Engine) IsOff(id ID) bool { return e.slots[id].off }

// Tick advances every channel.
func (e *Engine) Tick(now int64) {
	for i := range e.slots {
		s := &e.slots[i]
		s.ch.Tick(&s.anim, now)
	}
}

// Display advances every channel and writes its levels.
func (e *Engine) Display(now int64) {
	e.Tick(now)
	for i := range e.slots {
		e.slots[i].ch.Display()
	}
}
