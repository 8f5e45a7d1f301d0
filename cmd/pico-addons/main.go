//go:build rp2040 || rp2350

// Command pico-addons is the board firmware: it reads the gamepad pins and
// runs every available add-on once per millisecond. Logs go to USB serial and
// add-on events stream to a host over the UART link.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/services/addons"
	"gpaddons-go/services/addons/coinleds"
	"gpaddons-go/services/addons/i2cmapper"
	"gpaddons-go/services/addons/pccontrol"
	"gpaddons-go/services/addons/z680"
	"gpaddons-go/services/bridge"
	"gpaddons-go/services/config"
	"gpaddons-go/services/gamepad"
	"gpaddons-go/services/hal"
	"gpaddons-go/services/heartbeat"
	"gpaddons-go/x/timex"
)

// board selects the preset; override with -ldflags "-X main.board=pico".
var board = "MK2cabA"

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(1500 * time.Millisecond)
	println("[addons] boot", board)

	log := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	opts, ok := config.BoardLookup(board)
	if !ok {
		println("[addons] unknown board", board)
		opts = config.Disabled()
	}
	if err := opts.Validate(); err != nil {
		log.Error("board options invalid", "board", board, "err", err)
		return
	}

	ctx := context.Background()
	b := bus.NewBus(8)

	bridge.UARTDial = dialUART
	go bridge.Start(ctx, b.NewConnection("bridge"), log)

	reg, err := hal.New(hal.Plan{I2C: opts.I2C})
	if err != nil {
		log.Error("hal init", "err", err)
		return
	}
	defer reg.Close()

	store := config.NewMemStore(opts)
	pad := gamepad.NewGPIO(reg, opts.Gamepad, log)
	env := &addons.Env{
		Options: opts,
		Store:   store,
		Gamepad: pad,
		Clock:   timex.System{},
		HAL:     reg,
		Conn:    b.NewConnection("addons"),
		Log:     log,
	}

	m := addons.NewManager(log, pad)
	m.Register(coinleds.New(env))
	m.Register(pccontrol.New(env))
	m.Register(z680.New(env))
	m.Register(i2cmapper.New(env))
	m.Setup(ctx)
	println("[addons] running", len(m.Active()), "add-ons")

	hb := &heartbeat.Service{Active: func() int { return len(m.Active()) }, Log: log}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	// Options go out last so the link sees its config once everything is up.
	cfg := config.NewService(store, log)
	cfg.Start(ctx, b.NewConnection("config"))

	m.Run(ctx, time.Millisecond)
}
