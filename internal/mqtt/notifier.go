package mqtt

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/eventbus"
	"github.com/dokzlo13/xlightd/internal/model"
)

// Publisher is the part of Client the notifier needs.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// NotificationMessage is published on {prefix}/notify/{notif_uid}.
type NotificationMessage struct {
	RuleUID   model.UID `json:"rule_uid"`
	NotifUID  model.UID `json:"notif_uid"`
	Timestamp int64     `json:"timestamp"`
}

// Notifier relays notifications and actions from the bus to the broker.
type Notifier struct {
	pub    Publisher
	topics Topics
	now    func() time.Time
}

// NewNotifier creates a notifier publishing under topics.
func NewNotifier(pub Publisher, topics Topics) *Notifier {
	return &Notifier{pub: pub, topics: topics, now: time.Now}
}

// Subscribe hooks the notifier to the bus.
func (n *Notifier) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeNotification, func(e eventbus.Event) {
		if note, ok := e.Payload.(model.Notification); ok {
			n.Notify(note)
		}
	})
	bus.Subscribe(eventbus.EventTypeAction, func(e eventbus.Event) {
		if ev, ok := e.Payload.(model.ActionEvent); ok {
			n.Action(ev)
		}
	})
}

// Notify publishes one notification.
func (n *Notifier) Notify(note model.Notification) {
	payload, err := json.Marshal(NotificationMessage{
		RuleUID:   note.RuleUID,
		NotifUID:  note.NotifUID,
		Timestamp: n.now().Unix(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal notification")
		return
	}
	topic := n.topics.Notify(note.NotifUID)
	if err := n.pub.Publish(topic, false, payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Uint8("notif_uid", uint8(note.NotifUID)).Msg("Failed to publish notification")
		return
	}
	log.Debug().Str("topic", topic).Uint8("rule_uid", uint8(note.RuleUID)).Msg("Notification published")
}

// Action mirrors an emitted action so remote apps can track lamp state.
func (n *Notifier) Action(ev model.ActionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal action")
		return
	}
	if err := n.pub.Publish(n.topics.Action(), false, payload); err != nil {
		log.Error().Err(err).Uint8("rule_uid", uint8(ev.RuleUID)).Msg("Failed to publish action")
	}
}
