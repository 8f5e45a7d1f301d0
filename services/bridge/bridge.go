// Package bridge forwards bus traffic to a host over a framed serial link.
//
// The link is configured by the retained options on config/addons/link.
// Every message matching a forward filter is sent as a pub frame whose
// payload is the JSON encoding of {topic, payload, retained}. Retained
// messages are replayed whenever the link comes up.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gpaddons-go/bus"
	"gpaddons-go/errcode"
	"gpaddons-go/services/config"

	"gopkg.in/yaml.v3"
)

// StateTopic carries the retained link state.
var StateTopic = bus.T("bridge", "state")

// State is published retained on StateTopic.
type State struct {
	Level  string `json:"level"`  // "up", "degraded", "error", "idle"
	Status string `json:"status"` // short machine string
	Error  string `json:"error,omitempty"`
	TsMs   int64  `json:"ts_ms"`
}

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the bridge until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{conn: conn, log: log.With("service", "bridge")}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn *bus.Connection
	log  *slog.Logger

	mu     sync.Mutex
	curRun context.CancelFunc
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(config.Topic("link"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if !cfg.Enabled {
				s.stopCurrent()
				s.publishState("idle", "disabled", nil)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg config.LinkOptions) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg config.LinkOptions) {
	tr, err := newTransport(cfg)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}
	filters, err := parseFilters(cfg.Forward)
	if err != nil {
		s.publishState("error", "bad_forward_filter", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%w (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		s.log.Info("link up", "transport", tr.String())
		err = s.handleLink(ctx, rwc, filters, time.Duration(cfg.PingMs)*time.Millisecond)
		_ = rwc.Close()
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%w (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		s.publishState("idle", "link_closed", nil)
		return
	}
}

// handleLink owns one link lifetime. It returns nil on a clean close from
// either side.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser, filters []bus.Topic, ping time.Duration) error {
	rd := newFramedReader(rwc)
	wr := newFramedWriter(rwc)

	// Forwarded messages from every filter funnel into one writer.
	fwd := make(chan *bus.Message, 32)
	var subs []*bus.Subscription
	for _, f := range filters {
		subs = append(subs, s.conn.Subscribe(f))
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()
	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, sub := range subs {
		go pump(linkCtx, sub, fwd)
	}

	// Reader
	errCh := make(chan error, 1)
	pongs := make(chan struct{}, 1)
	go func() {
		defer close(errCh)
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			switch f.Type {
			case framePing:
				select {
				case pongs <- struct{}{}:
				default:
				}
			case framePong:
			case frameClose:
				return
			default:
				s.log.Debug("ignored frame", "type", f.Type, "len", len(f.Payload))
			}
		}
	}()

	if ping <= 0 {
		ping = 5 * time.Second
	}
	tick := time.NewTicker(ping)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err, ok := <-errCh:
			if !ok || err == nil {
				return nil
			}
			return err
		case <-pongs:
			if err := wr.WriteFrame(Frame{Type: framePong}); err != nil {
				return err
			}
		case <-tick.C:
			if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		case m := <-fwd:
			b, err := encodePub(m)
			if err != nil {
				s.log.Warn("encode", "topic", m.Topic.String(), "err", err)
				continue
			}
			if err := wr.WriteFrame(Frame{Type: framePub, Payload: b}); err != nil {
				return err
			}
		}
	}
}

func pump(ctx context.Context, sub *bus.Subscription, out chan<- *bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}

// PubFrame is the JSON body of a pub frame.
type PubFrame struct {
	Topic    string `json:"topic"`
	Payload  any    `json:"payload"`
	Retained bool   `json:"retained,omitempty"`
}

func encodePub(m *bus.Message) ([]byte, error) {
	return json.Marshal(PubFrame{Topic: m.Topic.String(), Payload: m.Payload, Retained: m.Retained})
}

// parseFilters turns "addons/+/credits" into bus topics.
func parseFilters(in []string) ([]bus.Topic, error) {
	if len(in) == 0 {
		return nil, errcode.Invalid("forward", "no filters")
	}
	out := make([]bus.Topic, 0, len(in))
	for _, f := range in {
		f = strings.Trim(f, "/")
		if f == "" {
			return nil, errcode.Invalid("forward", "empty filter")
		}
		parts := strings.Split(f, "/")
		t := make(bus.Topic, len(parts))
		for i, p := range parts {
			if p == "#" && i != len(parts)-1 {
				return nil, errcode.Invalid("forward", "# must be last in "+f)
			}
			t[i] = p
		}
		out = append(out, t)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(config.LinkOptions) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not set")
)

// RegisterTransport adds a named transport (eg. "tcp" in host builds).
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg config.LinkOptions) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Transport]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Transport {
	case "uart", "":
		return &uartTransport{cfg: cfg}, nil
	default:
		return nil, errcode.Wrap(errcode.Unsupported, "transport "+cfg.Transport, nil)
	}
}

// UARTDial is injected by platform code and opens the configured UART.
var UARTDial func(ctx context.Context, cfg config.LinkOptions) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg config.LinkOptions
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Framing: type byte, 16-bit big-endian length, payload
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: hdr[0], Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return errcode.Invalid("frame", fmt.Sprintf("too large: %d", len(f.Payload)))
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload))}
	if _, err := fw.w.Write(append(hdr, f.Payload...)); err != nil {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

// decodeConfig accepts the typed options or their YAML text.
func decodeConfig(p any) (config.LinkOptions, error) {
	var cfg config.LinkOptions
	switch v := p.(type) {
	case config.LinkOptions:
		return v, nil
	case *config.LinkOptions:
		if v == nil {
			return cfg, errcode.Invalid("link", "nil options")
		}
		return *v, nil
	case []byte:
		err := yaml.Unmarshal(v, &cfg)
		return cfg, err
	case string:
		err := yaml.Unmarshal([]byte(v), &cfg)
		return cfg, err
	default:
		return cfg, errcode.Invalid("link", fmt.Sprintf("unsupported payload %T", p))
	}
}

func (s *Service) publishState(level, status string, err error) {
	st := State{Level: level, Status: status, TsMs: time.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(StateTopic, st, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
