package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/errcode"
	"gpaddons-go/services/addons"
	"gpaddons-go/services/addons/coinleds"
	"gpaddons-go/services/addons/i2cmapper"
	"gpaddons-go/services/addons/pccontrol"
	"gpaddons-go/services/addons/z680"
	"gpaddons-go/services/config"
	"gpaddons-go/services/gamepad"
	"gpaddons-go/services/hal"
	"gpaddons-go/types"
	"gpaddons-go/x/timex"

	"github.com/google/shlex"
)

// sim drives the add-ons from a line-oriented script.
type sim struct {
	out    io.Writer
	pad    *gamepad.Manual // nil when reading real pins
	clock  *timex.Manual   // nil when running in real time
	m      *addons.Manager
	coin   *coinleds.Addon
	events *bus.Subscription
	now    func() int64
}

type simOptions struct {
	Options config.AddonOptions
	Store   config.Store
	HAL     hal.Registry
	// Hardware reads the gamepad from pins and runs on the wall clock.
	Hardware bool
	Log      *slog.Logger
	// Bus is shared with other services; nil creates a private one.
	Bus *bus.Bus
}

func newSim(ctx context.Context, so simOptions, out io.Writer) *sim {
	b := so.Bus
	if b == nil {
		b = bus.NewBus(256)
	}
	conn := b.NewConnection("addons")
	s := &sim{
		out:    out,
		events: b.NewConnection("sim").Subscribe(bus.T("addons", "#")),
	}

	env := &addons.Env{
		Options: so.Options,
		Store:   so.Store,
		HAL:     so.HAL,
		Conn:    conn,
		Log:     so.Log,
	}
	var input addons.Poller
	if so.Hardware {
		g := gamepad.NewGPIO(so.HAL, so.Options.Gamepad, so.Log)
		env.Gamepad, input = g, g
		env.Clock = timex.System{}
	} else {
		s.pad = &gamepad.Manual{}
		s.clock = timex.NewManual(1)
		env.Gamepad, env.Clock = s.pad, s.clock
	}
	s.now = env.Now

	s.m = addons.NewManager(so.Log, input)
	s.coin = coinleds.New(env)
	if !s.m.Register(s.coin) {
		s.coin = nil
	}
	s.m.Register(pccontrol.New(env))
	s.m.Register(z680.New(env))
	s.m.Register(i2cmapper.New(env))
	s.m.Setup(ctx)
	s.flush()
	return s
}

// run executes every line of r. '#' starts a comment.
func (s *sim) run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		if err := s.exec(sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

func (s *sim) exec(line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	args, err := shlex.Split(line)
	if err != nil {
		return errcode.Wrap(errcode.InvalidParams, "parse", err)
	}
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "press", "release":
		return s.buttons(cmd == "press", args)
	case "tick":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return errcode.Invalid("tick", "bad count "+strconv.Quote(args[0]))
			}
			n = v
		}
		s.tick(n)
	case "tap":
		// press, hold for one tick, release, settle
		if err := s.buttons(true, args); err != nil {
			return err
		}
		s.tick(1)
		if err := s.buttons(false, args); err != nil {
			return err
		}
		s.tick(1)
	case "credits":
		if s.coin == nil {
			return errcode.Wrap(errcode.NotReady, "credits", nil)
		}
		fmt.Fprintf(s.out, "credits %d\n", s.coin.Credits())
	case "levels":
		if s.coin == nil {
			return errcode.Wrap(errcode.NotReady, "levels", nil)
		}
		for _, name := range []string{"start", "coin", "marquee"} {
			ch, _ := s.coin.Channel(name)
			a, _ := s.coin.Animation(name)
			fmt.Fprintf(s.out, "%-8s %-6s brightness=%3d levels=%v\n", name, a.Type, ch.Brightness(), ch.Levels())
		}
	case "active":
		for _, a := range s.m.Active() {
			fmt.Fprintln(s.out, a.Name())
		}
	default:
		return errcode.Invalid(cmd, "unknown command")
	}
	return nil
}

func (s *sim) buttons(down bool, names []string) error {
	if s.pad == nil {
		return errcode.Wrap(errcode.Unsupported, "buttons", nil)
	}
	for _, name := range names {
		name = strings.ToLower(name)
		if m, ok := types.ButtonByName(name); ok {
			if down {
				s.pad.Press(m)
			} else {
				s.pad.Release(m)
			}
			continue
		}
		if m, ok := types.DpadByName(name); ok {
			if down {
				s.pad.PressDpad(m)
			} else {
				s.pad.ReleaseDpad(m)
			}
			continue
		}
		return errcode.Invalid("buttons", "unknown button "+strconv.Quote(name))
	}
	return nil
}

// tick runs n loop iterations one millisecond apart.
func (s *sim) tick(n int) {
	for i := 0; i < n; i++ {
		s.m.Tick()
		s.flush()
		if s.clock != nil {
			s.clock.Advance(1)
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// flush prints queued add-on events.
func (s *sim) flush() {
	for {
		select {
		case m := <-s.events.Channel():
			fmt.Fprintf(s.out, "%8d %s %+v\n", s.now(), m.Topic.String(), m.Payload)
		default:
			return
		}
	}
}
