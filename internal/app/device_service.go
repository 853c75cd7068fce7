package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/config"
	"github.com/dokzlo13/xlightd/internal/device"
	"github.com/dokzlo13/xlightd/internal/eventbus"
)

// DeviceService drives the Hue lights from action and device status events.
type DeviceService struct {
	cfg *config.Config
	bus *eventbus.Bus

	Filters *device.Filters
	Applier *device.Applier
}

// NewDeviceService compiles the Lua filters and prepares the bridge client.
// With hue disabled it does nothing.
func NewDeviceService(cfg *config.Config, bus *eventbus.Bus) (*DeviceService, error) {
	s := &DeviceService{cfg: cfg, bus: bus}
	if !cfg.Hue.Enabled {
		return s, nil
	}

	filters, err := device.NewFilters(cfg.Filters)
	if err != nil {
		return nil, err
	}
	s.Filters = filters

	bridge := device.NewHueBridge(cfg.Hue.Bridge, cfg.Hue.Token)
	s.Applier = device.NewApplier(bridge, filters, cfg.Hue.Rings, cfg.Hue.RateLimitRPS, cfg.Hue.Timeout.Duration())
	return s, nil
}

// Start subscribes the applier to the bus.
func (s *DeviceService) Start() {
	if s.Applier == nil {
		log.Info().Msg("Hue output is disabled")
		return
	}
	s.Applier.Subscribe(s.bus)
	log.Info().
		Str("bridge", s.cfg.Hue.Bridge).
		Ints("rings", s.cfg.Hue.Rings[:]).
		Int("filters", len(s.cfg.Filters)).
		Msg("Hue output enabled")
}

// Close releases the Lua state.
func (s *DeviceService) Close() {
	if s.Filters != nil {
		s.Filters.Close()
	}
}
