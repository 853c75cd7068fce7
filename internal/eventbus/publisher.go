package eventbus

import "github.com/dokzlo13/xlightd/internal/model"

// Publisher forwards controller output onto the bus. It satisfies the
// action sink and notifier the dispatcher emits to.
type Publisher struct {
	bus *Bus
}

// NewPublisher creates a publisher for b.
func NewPublisher(b *Bus) *Publisher {
	return &Publisher{bus: b}
}

// ApplyAction publishes an action event.
func (p *Publisher) ApplyAction(ev model.ActionEvent) {
	p.bus.Publish(Event{Type: EventTypeAction, Payload: ev})
}

// Notify publishes a notification event.
func (p *Publisher) Notify(n model.Notification) {
	p.bus.Publish(Event{Type: EventTypeNotification, Payload: n})
}

// DeviceStatus publishes an updated device status.
func (p *Publisher) DeviceStatus(row model.DeviceStatusRow) {
	p.bus.Publish(Event{Type: EventTypeDeviceStatus, Payload: row})
}
