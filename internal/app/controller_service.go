package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/alarm"
	"github.com/dokzlo13/xlightd/internal/config"
	"github.com/dokzlo13/xlightd/internal/controller"
	"github.com/dokzlo13/xlightd/internal/core"
	"github.com/dokzlo13/xlightd/internal/eventbus"
	"github.com/dokzlo13/xlightd/internal/model"
)

// ControllerService wraps the alarm pool and the control loop.
type ControllerService struct {
	Timers     *alarm.CronTimers
	Controller *controller.Controller

	started bool
	done    chan struct{}
}

// NewControllerService sizes the tables and the alarm pool from config.
func NewControllerService(cfg *config.Config, bus *eventbus.Bus, persister controller.Persister, auditor controller.Auditor) (*ControllerService, error) {
	c := cfg.Controller
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	timers := alarm.NewCronTimers(c.MaxAlarms, loc)
	ctrl := controller.New(timers, eventbus.NewPublisher(bus), controller.Options{
		Capacity: core.Capacity{
			Rules:     c.RuleCapacity,
			Schedules: model.ScheduleCapacity(c.ScheduleRegionBytes),
			Scenarios: c.ScenarioCapacity,
		},
		TickInterval:  c.TickInterval.Duration(),
		FlushInterval: c.FlushInterval.Duration(),
		QueueSize:     c.CommandQueue,
		Persister:     persister,
		Auditor:       auditor,
	})

	return &ControllerService{
		Timers:     timers,
		Controller: ctrl,
		done:       make(chan struct{}),
	}, nil
}

// Load restores persisted tables.
func (s *ControllerService) Load() error {
	return s.Controller.Load()
}

// Start runs the alarm pool and the control loop until ctx is cancelled.
func (s *ControllerService) Start(ctx context.Context, onFatalError func(error)) {
	s.Timers.Start()
	s.started = true

	go func() {
		defer close(s.done)
		if err := s.Controller.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Controller error")
			if onFatalError != nil {
				onFatalError(err)
			}
		}
	}()
}

// Wait blocks until the control loop has returned or timeout elapses.
func (s *ControllerService) Wait(timeout time.Duration) error {
	if !s.started {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("controller did not stop within %s", timeout)
	}
}

// Close stops the alarm pool.
func (s *ControllerService) Close() {
	<-s.Timers.Stop().Done()
}
