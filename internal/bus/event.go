package bus

import "time"

// Event kinds. Subscribers filter by prefix, so "message." receives every message event.
const (
	KindMessageInserted = "message.inserted"

	KindGatewayState = "gateway.state_changed"
	KindGatewayQR    = "gateway.qr"

	KindInboundMessage = "inbound.message"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
