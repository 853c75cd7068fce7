package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/api"
	"github.com/dokzlo13/xlightd/internal/config"
	"github.com/dokzlo13/xlightd/internal/controller"
	"github.com/dokzlo13/xlightd/internal/db"
	"github.com/dokzlo13/xlightd/internal/eventbus"
	"github.com/dokzlo13/xlightd/internal/ledger"
	"github.com/dokzlo13/xlightd/internal/persist"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB        *db.DB
	Ledger    *ledger.Ledger
	Persister *persist.Persister
	Bus       *eventbus.Bus

	// High-level services
	Controller *ControllerService
	Device     *DeviceService
	MQTT       *MQTTService
	API        *APIService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Persister = persist.NewPersister(persist.NewStore(database.DB))

	// Outbound events fan out to the device applier and MQTT notifier
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)

	var auditor controller.Auditor
	if cfg.Ledger.IsEnabled() {
		auditor = s.Ledger
	}
	s.Controller, err = NewControllerService(cfg, s.Bus, s.Persister, auditor)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Device, err = NewDeviceService(cfg, s.Bus)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.MQTT = NewMQTTService(cfg, s.Bus, s.Controller.Controller)

	var history api.History
	if cfg.Ledger.IsEnabled() {
		history = s.Ledger
	}
	s.API = NewAPIService(cfg, s.Controller.Controller, history)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., the control loop failing).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Restore tables before any command can arrive
	if err := s.Controller.Load(); err != nil {
		return err
	}

	s.Device.Start()
	if err := s.MQTT.Start(ctx); err != nil {
		return err
	}

	s.Controller.Start(ctx, onFatalError)
	s.API.Start(ctx)

	if s.cfg.Ledger.IsEnabled() {
		go s.runLedgerCleanup(ctx)
	}
	return nil
}

// ClearState drops every persisted table.
func (s *Services) ClearState() error {
	return s.Persister.Clear()
}

// Stop waits for the control loop to flush, then releases all resources.
// The app context must already be cancelled.
func (s *Services) Stop() error {
	var err error
	if s.Controller != nil {
		err = s.Controller.Wait(s.cfg.ShutdownTimeout.Duration())
	}
	s.Close()
	return err
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Controller != nil {
		s.Controller.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Device != nil {
		s.Device.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
