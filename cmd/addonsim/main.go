// Command addonsim runs the add-ons on a host. By default the gamepad and
// pins are simulated and a script drives the buttons; with -hw the pins
// are real GPIOs on a Linux board.
//
//	addonsim -board MK2cabA script.txt
//	printf 'tap coin\ntick 10\ncredits\n' | addonsim
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"

	"gpaddons-go/bus"
	"gpaddons-go/services/addons/i2cmapper"
	"gpaddons-go/services/bridge"
	"gpaddons-go/services/config"
	"gpaddons-go/services/hal"
	"gpaddons-go/services/hal/fake"
)

func main() {
	var (
		board   = flag.String("board", "MK2cabA", "board preset ("+strings.Join(sortedBoards(), ", ")+")")
		cfgPath = flag.String("config", "", "YAML options file layered over the preset")
		hw      = flag.Bool("hw", false, "use real GPIOs through periph.io")
		verbose = flag.Bool("v", false, "debug logging")
		link    = flag.String("link", "", "stream events to a host link listener at host:port")
	)
	flag.Parse()

	if err := run(*board, *cfgPath, *hw, *verbose, *link, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "addonsim:", err)
		os.Exit(1)
	}
}

func sortedBoards() []string {
	b := config.Boards()
	sort.Strings(b)
	return b
}

func run(board, cfgPath string, hw, verbose bool, link string, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	defaults, ok := config.BoardLookup(board)
	if !ok {
		return fmt.Errorf("unknown board %q", board)
	}
	var store config.Store = config.NewMemStore(defaults)
	if cfgPath != "" {
		store = &config.FileStore{Path: cfgPath, Defaults: defaults}
	}
	opts, err := store.Load()
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	var reg hal.Registry
	if hw {
		if reg, err = hal.New(hal.Plan{I2C: opts.I2C}); err != nil {
			return err
		}
	} else {
		reg = simRegistry(opts)
	}
	defer reg.Close()

	var in io.Reader = os.Stdin
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := bus.NewBus(256)
	if link != "" {
		startLink(ctx, b, store, link, log)
	}

	s := newSim(ctx, simOptions{
		Options:  opts,
		Store:    store,
		HAL:      reg,
		Hardware: hw,
		Log:      log,
		Bus:      b,
	}, os.Stdout)
	return s.run(in)
}

// startLink runs the event bridge over TCP instead of a UART.
func startLink(ctx context.Context, b *bus.Bus, store config.Store, addr string, log *slog.Logger) {
	bridge.RegisterTransport("tcp", func(config.LinkOptions) (bridge.Transport, error) {
		return tcpTransport(addr), nil
	})
	go bridge.Start(ctx, b.NewConnection("bridge"), log)

	o, err := store.Load()
	if err != nil {
		log.Warn("link options", "err", err)
		return
	}
	o.Link.Enabled = true
	o.Link.Transport = "tcp"
	conn := b.NewConnection("config")
	conn.Publish(conn.NewMessage(config.Topic("link"), o.Link, true))
}

type tcpTransport string

func (t tcpTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", string(t))
}

func (t tcpTransport) String() string { return "tcp " + string(t) }

// simRegistry answers on the mapper's bus at every address its maps use.
func simRegistry(opts config.AddonOptions) *fake.Registry {
	reg := fake.NewRegistry()
	var addrs []uint16
	for _, m := range opts.I2CMapper.Maps {
		if m.Command != 0 {
			addrs = append(addrs, uint16(i2cmapper.Address(m.Command)))
		}
	}
	reg.AddI2C(opts.I2CMapper.Bus, addrs...)
	return reg
}
