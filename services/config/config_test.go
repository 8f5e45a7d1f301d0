package config

import (
	"errors"
	"testing"
	"time"

	"gpaddons-go/bus"
)

func TestConfig_PublishRetainedPerAddon(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	opts, _ := BoardLookup("MK2cabA")
	svc := NewService(NewMemStore(opts), nil)

	if _, err := svc.Publish(conn); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Subscribe after publishing; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.T(configPrefix, addonsKey, "+"))

	wantCount := 6
	got := map[string]any{}
	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() != 3 {
				t.Fatalf("unexpected topic length: %#v", m.Topic)
			}
			key, ok := m.Topic.At(2).(string)
			if !ok {
				t.Fatalf("topic[2] type %T, want string", m.Topic.At(2))
			}
			if !m.Retained {
				t.Fatalf("%s not retained", key)
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d (%v)", wantCount, len(got), got)
	}

	cl, ok := got["coin_leds"].(CoinLedsOptions)
	if !ok {
		t.Fatalf("coin_leds payload type = %T", got["coin_leds"])
	}
	if !cl.Enabled || cl.MarqueePin != 28 {
		t.Fatalf("coin_leds payload = %+v", cl)
	}
}

type failingStore struct{}

func (failingStore) Load() (AddonOptions, error) { return AddonOptions{}, errors.New("boom") }
func (failingStore) Save(AddonOptions) error     { return errors.New("boom") }

func TestConfig_PublishLoadError(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-load-error")
	svc := NewService(failingStore{}, nil)

	if _, err := svc.Publish(conn); err == nil {
		t.Fatal("expected error from failing store, got nil")
	}
}

func TestConfig_SaveRepublishes(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-save")
	store := NewMemStore(Disabled())
	svc := NewService(store, nil)

	sub := conn.Subscribe(Topic("coin_leds"))

	o := Disabled()
	o.CoinLeds.MarqueeBrightness = 40
	if err := svc.Save(conn, o); err != nil {
		t.Fatalf("save: %v", err)
	}
	select {
	case m := <-sub.Channel():
		if got := m.Payload.(CoinLedsOptions).MarqueeBrightness; got != 40 {
			t.Fatalf("marquee brightness = %d, want 40", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no republish after save")
	}
	if store.Saves() != 1 {
		t.Fatalf("saves = %d, want 1", store.Saves())
	}
}
