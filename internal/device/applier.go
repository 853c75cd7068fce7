// Package device applies lighting actions to the lamps. Rings are mapped to
// Hue lights; an optional Lua filter transforms them first.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/xlightd/internal/eventbus"
	"github.com/dokzlo13/xlightd/internal/model"
)

// Lights sets the state of one light.
type Lights interface {
	SetLightState(id int, state huego.State) (*huego.Response, error)
}

// Applier pushes ring states to lights, rate-limited.
type Applier struct {
	lights  Lights
	filters *Filters
	rings   [3]int
	limiter *rate.Limiter
	timeout time.Duration
}

// NewApplier creates an applier. rings maps ring index to light id; 0 leaves a ring unmapped.
func NewApplier(lights Lights, filters *Filters, rings [3]int, rateLimitRPS float64, timeout time.Duration) *Applier {
	if rateLimitRPS <= 0 {
		rateLimitRPS = 5.0
	}
	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Applier{
		lights:  lights,
		filters: filters,
		rings:   rings,
		limiter: rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
		timeout: timeout,
	}
}

// NewHueBridge connects a huego bridge client.
func NewHueBridge(host, token string) *huego.Bridge {
	return huego.New(host, token)
}

// Apply runs the filter, then sets every mapped ring's light.
// It stops at the first failed light.
func (a *Applier) Apply(ctx context.Context, rings model.Rings, filter uint8) error {
	if a.filters != nil {
		filtered, err := a.filters.Apply(filter, rings)
		if err != nil {
			return err
		}
		rings = filtered
	}

	for i, lightID := range a.rings {
		if lightID == 0 {
			continue
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		state := LightState(rings[i])
		if _, err := a.lights.SetLightState(lightID, state); err != nil {
			return fmt.Errorf("failed to set light %d (ring %d): %w", lightID, i+1, err)
		}
		log.Debug().
			Int("light", lightID).
			Int("ring", i+1).
			Interface("state", state).
			Msg("Applied ring state")
	}
	return nil
}

// Subscribe hooks the applier to action and device status events.
func (a *Applier) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeAction, func(e eventbus.Event) {
		ev, ok := e.Payload.(model.ActionEvent)
		if !ok {
			return
		}
		a.handle(ev.Rings, ev.Filter, log.Info().
			Uint8("rule_uid", uint8(ev.RuleUID)).
			Uint8("scenario_uid", uint8(ev.ScenarioUID)))
	})
	bus.Subscribe(eventbus.EventTypeDeviceStatus, func(e eventbus.Event) {
		row, ok := e.Payload.(model.DeviceStatusRow)
		if !ok {
			return
		}
		a.handle(row.Rings, NoFilter, log.Info().Uint8("device_id", row.ID))
	})
}

func (a *Applier) handle(rings model.Rings, filter uint8, done *zerolog.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.Apply(ctx, rings, filter); err != nil {
		done.Discard()
		log.Error().Err(err).Uint8("filter", filter).Msg("Failed to apply lighting action")
		return
	}
	done.Uint8("filter", filter).Msg("Lighting action applied")
}
