package config

import (
	"context"
	"log/slog"

	"gpaddons-go/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	addonsKey    = "addons"
)

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

// Service loads options from a Store and publishes them retained, one message
// per add-on under config/addons/<addon>.
type Service struct {
	Name  string
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Name: serviceName, store: store, log: log.With("service", serviceName)}
}

// Topic returns the retained topic for one add-on's options.
func Topic(addon string) bus.Topic { return bus.T(configPrefix, addonsKey, addon) }

// Publish loads the options and publishes each section retained.
func (s *Service) Publish(conn *bus.Connection) (AddonOptions, error) {
	o, err := s.store.Load()
	if err != nil {
		return AddonOptions{}, err
	}
	sections := map[string]any{
		"gamepad":    o.Gamepad,
		"coin_leds":  o.CoinLeds,
		"pc_control": o.PCControl,
		"z680":       o.Z680,
		"i2c_mapper": o.I2CMapper,
		"link":       o.Link,
	}
	for k, v := range sections {
		conn.Publish(conn.NewMessage(Topic(k), v, true))
	}
	s.log.Info("options published", "board", o.Board)
	return o, nil
}

// Save persists o and republishes it.
func (s *Service) Save(conn *bus.Connection, o AddonOptions) error {
	if err := s.store.Save(o); err != nil {
		return err
	}
	if conn != nil {
		_, err := s.Publish(conn)
		return err
	}
	return nil
}

// Start launches the publisher in a goroutine.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if _, err := s.Publish(conn); err != nil {
			s.log.Error("publish options", "err", err)
		}
	}()
}
