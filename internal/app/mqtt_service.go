package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/config"
	"github.com/dokzlo13/xlightd/internal/eventbus"
	"github.com/dokzlo13/xlightd/internal/mqtt"
)

// MQTTService publishes notifications and takes commands over MQTT.
type MQTTService struct {
	cfg  *config.Config
	bus  *eventbus.Bus
	ctrl mqtt.Submitter

	Client *mqtt.Client
}

// NewMQTTService creates the service. The broker is dialled on Start.
func NewMQTTService(cfg *config.Config, bus *eventbus.Bus, ctrl mqtt.Submitter) *MQTTService {
	return &MQTTService{cfg: cfg, bus: bus, ctrl: ctrl}
}

// Start connects to the broker, hooks the notifier to the bus and
// subscribes the command intake.
func (s *MQTTService) Start(ctx context.Context) error {
	if !s.cfg.MQTT.Enabled {
		log.Info().Msg("MQTT is disabled")
		return nil
	}

	m := s.cfg.MQTT
	client, err := mqtt.Connect(mqtt.Options{
		Broker:      m.Broker,
		ClientID:    m.ClientID,
		Username:    m.Username,
		Password:    m.Password,
		TopicPrefix: m.TopicPrefix,
		QoS:         m.QoS,
		Timeout:     m.Timeout.Duration(),
	})
	if err != nil {
		return err
	}
	s.Client = client

	topics := client.Topics()
	mqtt.NewNotifier(client, topics).Subscribe(s.bus)

	intake := mqtt.NewIntake(client, topics, s.ctrl, m.Timeout.Duration())
	if err := client.Subscribe(topics.Command(), intake.Handle); err != nil {
		return err
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTService) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
}
