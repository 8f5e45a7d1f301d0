//go:build rp2040 || rp2350

package main

import (
	"context"
	"io"
	"machine"

	"gpaddons-go/errcode"
	"gpaddons-go/services/config"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// uartLink adapts uartx to io.ReadWriteCloser. Close unblocks a pending read.
type uartLink struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
}

func (l *uartLink) Read(p []byte) (int, error) {
	n, err := l.u.RecvSomeContext(l.ctx, p)
	if err != nil && l.ctx.Err() != nil {
		return n, io.EOF
	}
	return n, err
}

func (l *uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }

func (l *uartLink) Close() error {
	l.cancel()
	return nil
}

// dialUART opens the link UART. GP0/GP1 (and their aliases) select UART0,
// GP4/GP5 and GP8/GP9 UART1.
func dialUART(ctx context.Context, cfg config.LinkOptions) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch cfg.TXPin {
	case 0, 12, 16, 28:
		hw = uartx.UART0
	case 4, 8, 20, 24:
		hw = uartx.UART1
	default:
		return nil, errcode.Wrap(errcode.UnknownPin, "link tx", nil)
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: cfg.Baud,
		TX:       machine.Pin(cfg.TXPin),
		RX:       machine.Pin(cfg.RXPin),
	}); err != nil {
		return nil, errcode.Wrap(errcode.Error, "link configure", err)
	}
	lctx, cancel := context.WithCancel(ctx)
	return &uartLink{u: hw, ctx: lctx, cancel: cancel}, nil
}
