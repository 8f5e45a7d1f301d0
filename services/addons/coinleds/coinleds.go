// Package coinleds lights the coin, start and marquee LEDs of an arcade
// cabinet and keeps the credit count that drives them.
//
// A coin edge adds a credit and a start edge spends one. With no credits the
// start LEDs are dark and the coin LEDs fade; with credits the start LEDs
// blink after the first coin and stay lit while credits remain. Holding coin
// diverts the dpad to LED control: up and down adjust the marquee, left
// switches every channel dark or lit.
package coinleds

import (
	"context"
	"log/slog"

	"gpaddons-go/services/addons"
	"gpaddons-go/services/addons/leds"
	"gpaddons-go/services/addons/relay"
	"gpaddons-go/services/config"
	"gpaddons-go/types"
	"gpaddons-go/x/mathx"
	"gpaddons-go/x/timex"
)

const Name = "coin_leds"

// MaxCredits is where the credit counter saturates.
const MaxCredits = 0xFF

type Addon struct {
	env  *addons.Env
	opts config.CoinLedsOptions
	log  *slog.Logger
	pub  addons.Publisher

	engine               leds.Engine
	start, coin, marquee leds.ID
	relay                *relay.Relay
	debounce             timex.Debouncer

	startMask, coinMask uint32
	watched             uint32
	credits             uint8
	lastButtons         uint32
	lastDpad            uint8
	ready               bool
}

var _ addons.Addon = (*Addon)(nil)

func New(env *addons.Env) *Addon {
	return &Addon{
		env:  env,
		opts: env.Options.CoinLeds,
		log:  env.Logger(Name),
		pub:  addons.NewPublisher(env.Conn, Name),
	}
}

func (a *Addon) Name() string    { return Name }
func (a *Addon) Available() bool { return a.opts.Enabled }

// Credits returns the current credit count.
func (a *Addon) Credits() uint8 { return a.credits }

// Animation returns the program of the named channel ("start", "coin", "marquee").
func (a *Addon) Animation(channel string) (leds.Animation, bool) {
	id, ok := a.channelID(channel)
	if !ok {
		return leds.Animation{}, false
	}
	return a.engine.Animation(id), true
}

// Channel returns the named LED channel.
func (a *Addon) Channel(channel string) (*leds.Channel, bool) {
	id, ok := a.channelID(channel)
	if !ok {
		return nil, false
	}
	return a.engine.Channel(id), true
}

func (a *Addon) channelID(name string) (leds.ID, bool) {
	switch name {
	case "start":
		return a.start, a.ready
	case "coin":
		return a.coin, a.ready
	case "marquee":
		return a.marquee, a.ready
	}
	return 0, false
}

// Setup claims the LED and relay pins. Stored brightness, if any, replaces
// the configured values.
func (a *Addon) Setup(ctx context.Context) error {
	o := a.opts
	if a.env.Store != nil {
		if stored, err := a.env.Store.Load(); err != nil {
			a.log.Warn("load stored brightness", "err", err)
		} else {
			o.StartBrightness = stored.CoinLeds.StartBrightness
			o.CoinBrightness = stored.CoinLeds.CoinBrightness
			o.MarqueeBrightness = stored.CoinLeds.MarqueeBrightness
		}
	}
	a.opts = o

	reg := a.env.HAL
	startCh := leds.NewChannel("start")
	startCh.Configure(reg, Name, o.StartPins, mathx.PercentToByte(o.StartBrightness), a.log)
	coinCh := leds.NewChannel("coin")
	coinCh.Configure(reg, Name, o.CoinPins, mathx.PercentToByte(o.CoinBrightness), a.log)
	marqueeCh := leds.NewChannel("marquee")
	marqueeCh.Configure(reg, Name, []int{o.MarqueePin}, mathx.PercentToByte(o.MarqueeBrightness), a.log)

	a.start = a.engine.Add(startCh, leds.AllOff)
	a.coin = a.engine.Add(coinCh, leds.AllOn)
	a.marquee = a.engine.Add(marqueeCh, leds.AllOn)

	a.relay = relay.New(reg, Name, a.pub, a.log)
	if err := a.relay.Add("start", o.ExtStartPin, uint32(o.ExtStartMask), o.ExtActiveHigh); err != nil {
		a.log.Warn("external start line unavailable", "pin", o.ExtStartPin, "err", err)
	}
	if err := a.relay.Add("coin", o.ExtCoinPin, uint32(o.ExtCoinMask), o.ExtActiveHigh); err != nil {
		a.log.Warn("external coin line unavailable", "pin", o.ExtCoinPin, "err", err)
	}

	a.startMask = uint32(o.StartMask)
	a.coinMask = uint32(o.CoinMask)
	a.watched = a.startMask | a.coinMask | a.relay.Mask()
	a.debounce = timex.Debouncer{IntervalMs: o.DebounceMs}
	a.ready = true
	a.engine.Display(a.env.Now())

	if !startCh.Ready() && !coinCh.Ready() && !marqueeCh.Ready() {
		a.log.Warn("no led pins bound")
	}
	a.log.Info("coin leds ready",
		"start", startCh.Ready(), "coin", coinCh.Ready(), "marquee", marqueeCh.Ready(),
		"relay_lines", a.relay.Len())

	a.publishCredits()
	for _, id := range []leds.ID{a.start, a.coin, a.marquee} {
		a.publishAnimation(id)
	}
	return nil
}

func (a *Addon) Preprocess() {}

// Process runs one tick: animate, then react to button changes.
func (a *Addon) Process() {
	st := a.env.Gamepad.State()
	buttons := st.Buttons & a.watched
	dpad := st.Dpad & types.DpadAll
	now := a.env.Now()

	a.engine.Display(now)
	if !a.ready {
		return
	}

	if buttons != a.lastButtons {
		a.relay.Update(buttons)
	}

	if dpad != 0 {
		if buttons&a.coinMask != 0 {
			a.processDpad(dpad, now)
		}
		a.lastDpad = dpad
		a.lastButtons = buttons
		return
	}
	a.lastDpad = 0

	if buttons == a.lastButtons {
		return
	}
	pressed := buttons &^ a.lastButtons
	a.lastButtons = buttons
	a.processCredits(pressed)
}

func (a *Addon) processDpad(dpad uint8, now int64) {
	if dpad&types.DpadLeft != 0 && a.lastDpad&types.DpadLeft == 0 {
		a.toggleAll()
		return
	}
	if dpad&(types.DpadUp|types.DpadDown) == 0 {
		return
	}
	if !a.debounce.Allow(now) {
		return
	}
	ch := a.engine.Channel(a.marquee)
	if !ch.Ready() {
		return
	}
	if dpad&types.DpadUp != 0 {
		ch.BrightnessUp()
	}
	if dpad&types.DpadDown != 0 {
		ch.BrightnessDown()
	}
	a.publishBrightness(ch, false)
}

func (a *Addon) toggleAll() {
	on := false
	for _, id := range []leds.ID{a.marquee, a.coin, a.start} {
		on = a.engine.Toggle(id)
		a.publishAnimation(id)
	}
	a.log.Info("leds toggled", "on", on)
	if on {
		a.saveBrightness()
	}
}

// savedLevel is what a channel persists: the live brightness for a steady
// program, the configured ceiling otherwise.
func (a *Addon) savedLevel(id leds.ID) uint8 {
	ch := a.engine.Channel(id)
	if a.engine.Animation(id).Type == leds.Solid {
		return ch.Brightness()
	}
	return ch.MaxBrightness()
}

func (a *Addon) saveBrightness() {
	store := a.env.Store
	if store == nil {
		return
	}
	o, err := store.Load()
	if err != nil {
		a.log.Warn("load options", "err", err)
		return
	}
	o.CoinLeds.StartBrightness = mathx.ByteToPercent(a.savedLevel(a.start))
	o.CoinLeds.CoinBrightness = mathx.ByteToPercent(a.savedLevel(a.coin))
	o.CoinLeds.MarqueeBrightness = mathx.ByteToPercent(a.savedLevel(a.marquee))
	if err := store.Save(o); err != nil {
		a.log.Warn("save brightness", "err", err)
		return
	}
	for _, id := range []leds.ID{a.start, a.coin, a.marquee} {
		a.publishBrightness(a.engine.Channel(id), true)
	}
}

func (a *Addon) processCredits(pressed uint32) {
	switch {
	case pressed&a.coinMask != 0:
		if a.credits == 0 {
			a.set(a.start, leds.BlinkFastAll)
			a.set(a.coin, leds.AllOn)
		}
		if a.credits < MaxCredits {
			a.credits++
		}
		a.publishCredits()

	case pressed&a.startMask != 0:
		if a.credits > 0 {
			a.credits--
			a.publishCredits()
		}
		if a.credits == 0 {
			// Also the cue for a start press with no credit.
			a.set(a.start, leds.AllOff)
			a.set(a.coin, leds.FadeAll)
		} else {
			a.set(a.start, leds.AllOn)
		}
	}
}

func (a *Addon) set(id leds.ID, anim leds.Animation) {
	if a.engine.SetAnimation(id, anim) {
		a.publishAnimation(id)
	}
}

func (a *Addon) publishCredits() {
	a.pub.Publish(types.CreditValue{Count: a.credits}, true, "credits")
}

func (a *Addon) publishAnimation(id leds.ID) {
	ch := a.engine.Channel(id)
	a.pub.Publish(a.engine.Animation(id).Value(), true, "leds", ch.Name())
}

func (a *Addon) publishBrightness(ch *leds.Channel, saved bool) {
	b := ch.Brightness()
	a.pub.Publish(types.BrightnessValue{Level: b, Percent: mathx.ByteToPercent(b), Saved: saved}, false, "brightness", ch.Name())
}
